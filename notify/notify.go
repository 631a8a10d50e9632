// Package notify delivers best-effort user notifications about document
// lifecycle events. Delivery failures are logged and never fail the
// operation that raised the event.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/docrag/core"
)

// EventType names a notification kind.
type EventType string

const (
	// DocumentUpload is raised once a document has been persisted.
	DocumentUpload EventType = "document_upload"
	// DocumentEmbedding is raised once a document's embeddings are ready.
	DocumentEmbedding EventType = "document_embedding"
)

// Event is a single notification.
type Event struct {
	Id         string
	Type       EventType
	Title      string
	Message    string
	DocumentId core.ID
	Metadata   map[string]string
	CreatedAt  time.Time
}

// NewEvent creates an event with a fresh id and timestamp.
func NewEvent(eventType EventType, docID core.ID, title, message string, metadata map[string]string) Event {
	return Event{
		Id:         uuid.NewString(),
		Type:       eventType,
		Title:      title,
		Message:    message,
		DocumentId: docID,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}
}

// Notifier receives events.
// Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// LogNotifier writes events to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that logs at info level.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

// Notify logs the event.
func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	attrs := []any{
		"id", event.Id,
		"type", string(event.Type),
		"document", strconv.FormatUint(uint64(event.DocumentId), 10),
		"title", event.Title,
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, k, v)
	}
	n.logger.InfoContext(ctx, event.Message, attrs...)
	return nil
}

// MultiNotifier fans an event out to several notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier delivering to all of notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Notify delivers to every notifier and joins their errors.
func (n *MultiNotifier) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, notifier := range n.notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Send delivers event and logs a failure instead of returning it.
func Send(ctx context.Context, n Notifier, event Event, logger *slog.Logger) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, event); err != nil {
		logger.Warn("notification failed", "type", string(event.Type), "document", event.DocumentId, "err", err)
	}
}
