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

// Package retrieval finds cited evidence for a query within a set of documents.
//
// The Retriever tries three tiers in order and stops at the first one that
// produces evidence:
//   - Vector: cosine similarity between the query embedding and the chunk
//     embeddings of ready documents
//   - Pattern: explicit references such as "step 3" located in the raw content
//   - Full document: the opening of each document, ranked by term overlap
//
// Embedding failures never reach the caller. They are logged, reported to the
// Monitor and the next tier is tried, so a query over at least one non-empty
// document always yields evidence.
package retrieval
