package activity

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tracevec/backend/internal/models"
)

// Store is the append-only persistence behind the writer.
type Store interface {
	Insert(ctx context.Context, accountID uuid.UUID, action models.Action, details map[string]any) error
}

// Writer appends immutable audit records. Only authenticated accounts
// produce records: callers skip the writer entirely for guests. Storage
// failures propagate to the caller.
type Writer struct {
	store Store
}

func NewWriter(store Store) *Writer {
	return &Writer{store: store}
}

// Record appends one record. The details payload is action-specific and
// unvalidated beyond being a JSON object or absent.
func (w *Writer) Record(ctx context.Context, accountID uuid.UUID, action models.Action, details map[string]any) error {
	if !models.ValidAction(action) {
		return fmt.Errorf("activity: unknown action %q", action)
	}
	return w.store.Insert(ctx, accountID, action, details)
}
