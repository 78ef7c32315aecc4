package history

import (
	"context"
	"fmt"

	"github.com/ent0n29/mnemo/internal/memory"
)

// Controller tracks, per user, whether relevance retrieval is enabled.
// The ledger cursor doubles as the switch: CursorDisabled turns retrieval
// off, any other value means on. Neither action touches stored messages.
type Controller struct {
	store memory.Store
}

func New(store memory.Store) *Controller {
	return &Controller{store: store}
}

// Disable turns retrieval off for the user. Existing messages stay in the
// ledger; future turns simply skip the ranker.
func (c *Controller) Disable(ctx context.Context, userID string) error {
	if err := c.store.SetCursor(ctx, userID, memory.CursorDisabled); err != nil {
		return fmt.Errorf("disable history: %w", err)
	}
	return nil
}

// Enable turns retrieval on, recording the index of the newest message at
// this moment (-1 for an empty ledger).
func (c *Controller) Enable(ctx context.Context, userID string) error {
	msgs, err := c.store.ReadAll(ctx, userID)
	if err != nil {
		return fmt.Errorf("enable history: %w", err)
	}
	if err := c.store.SetCursor(ctx, userID, len(msgs)-1); err != nil {
		return fmt.Errorf("enable history: %w", err)
	}
	return nil
}

// IsEnabled reports whether retrieval is active for the user.
func (c *Controller) IsEnabled(ctx context.Context, userID string) (bool, error) {
	cursor, err := c.store.Cursor(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("read cursor: %w", err)
	}
	return cursor != memory.CursorDisabled, nil
}
