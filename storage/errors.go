// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"errors"
	"fmt"

	"github.com/poiesic/docrag/core"
)

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = fmt.Errorf("record %w", core.ErrNotFound)

	// ErrStateConflict indicates a compare-and-set transition lost to the current state.
	ErrStateConflict = fmt.Errorf("transition %w", core.ErrStateConflict)

	// ErrStaleRevision indicates a write for a document revision that is no longer current.
	ErrStaleRevision = fmt.Errorf("%w: %w", core.ErrStateConflict, core.ErrStaleRevision)

	// ErrDimensionMismatch indicates a vector whose size differs from earlier vectors of the same model.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidQuery indicates invalid query parameters.
	ErrInvalidQuery = errors.New("invalid query parameters")

	// ErrInvalidCursor indicates a malformed pagination cursor.
	ErrInvalidCursor = fmt.Errorf("%w: invalid cursor", core.ErrValidation)

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrTruncatedData indicates that data was truncated during reading.
	ErrTruncatedData = errors.New("truncated data")
)
