package admingrid

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSettleDelay is the minimum time the loading indicator stays up.
const DefaultSettleDelay = 500 * time.Millisecond

// BulkView is the part of the UI the bulk-action flow drives.
type BulkView interface {
	// SetBulkControl shows or hides the bulk-action control with its count.
	SetBulkControl(visible bool, count int)
	ShowConfirm(count int)
	HideConfirm()
	ShowLoading()
	HideLoading()
	ShowError(err error)
}

// NopBulkView ignores every call.
type NopBulkView struct{}

func (NopBulkView) SetBulkControl(bool, int) {}
func (NopBulkView) ShowConfirm(int)          {}
func (NopBulkView) HideConfirm()             {}
func (NopBulkView) ShowLoading()             {}
func (NopBulkView) HideLoading()             {}
func (NopBulkView) ShowError(error)          {}

// BulkPhase is the state of the bulk-action flow.
type BulkPhase int

const (
	BulkIdle BulkPhase = iota
	BulkConfirm
	BulkExecuting
)

func (p BulkPhase) String() string {
	switch p {
	case BulkConfirm:
		return "confirm"
	case BulkExecuting:
		return "executing"
	}
	return "idle"
}

// BulkController owns a grid's selection and runs bulk delete over it:
// confirm, then executing, then settled.
type BulkController struct {
	mu        sync.Mutex
	selection *SelectionSet
	phase     BulkPhase

	view   BulkView
	delete func(ctx context.Context, ids []RowIdentity) error
	reload func(ctx context.Context) error
	settle time.Duration
	logger *slog.Logger
}

// NewBulkController creates a controller. del removes rows; reload refreshes
// the grid after a successful delete.
func NewBulkController(view BulkView, del func(context.Context, []RowIdentity) error, reload func(context.Context) error, settle time.Duration, logger *slog.Logger) *BulkController {
	if view == nil {
		view = NopBulkView{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BulkController{
		selection: NewSelectionSet(),
		view:      view,
		delete:    del,
		reload:    reload,
		settle:    settle,
		logger:    logger,
	}
}

// Select marks rows selected.
func (b *BulkController) Select(ids ...RowIdentity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selection.Select(ids...)
	b.publish()
}

// Deselect unmarks rows.
func (b *BulkController) Deselect(ids ...RowIdentity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selection.Deselect(ids...)
	b.publish()
}

// Reset clears the selection.
func (b *BulkController) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selection.Clear()
	b.publish()
}

// Selected returns the selected identities.
func (b *BulkController) Selected() []RowIdentity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selection.IDs()
}

// IsSelected reports whether id is selected.
func (b *BulkController) IsSelected(id RowIdentity) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selection.Has(id)
}

// Phase returns the current phase.
func (b *BulkController) Phase() BulkPhase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

func (b *BulkController) publish() {
	n := b.selection.Len()
	b.view.SetBulkControl(n > 0, n)
}

// Request opens the confirmation for the current selection.
func (b *BulkController) Request() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.phase == BulkExecuting {
		return ErrBulkInProgress
	}
	if b.selection.Empty() {
		return ErrEmptySelection
	}
	b.phase = BulkConfirm
	b.view.ShowConfirm(b.selection.Len())
	return nil
}

// Cancel closes the confirmation without acting.
func (b *BulkController) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.phase != BulkConfirm {
		return
	}
	b.phase = BulkIdle
	b.view.HideConfirm()
}

// Confirm deletes the selected rows after Request opened the confirmation.
// The loading indicator stays up for at
// least the settle delay. On success the selection is cleared and the grid
// reloaded; on failure the selection is kept and the error shown.
func (b *BulkController) Confirm(ctx context.Context) error {
	b.mu.Lock()
	if b.phase == BulkExecuting {
		b.mu.Unlock()
		return ErrBulkInProgress
	}
	if b.phase != BulkConfirm {
		b.mu.Unlock()
		return ErrBulkNotRequested
	}
	if b.selection.Empty() {
		b.phase = BulkIdle
		b.mu.Unlock()
		return ErrEmptySelection
	}
	ids := b.selection.IDs()
	b.phase = BulkExecuting
	b.view.HideConfirm()
	b.view.ShowLoading()
	b.mu.Unlock()

	started := time.Now()
	err := b.delete(ctx, ids)
	wait(ctx, b.settle-time.Since(started))

	b.mu.Lock()
	b.view.HideLoading()
	b.phase = BulkIdle
	if err != nil {
		b.mu.Unlock()
		b.logger.Warn("Bulk delete failed", "rows", len(ids), "error", err)
		b.view.ShowError(err)
		return err
	}
	b.selection.Clear()
	b.publish()
	b.mu.Unlock()

	if b.reload != nil {
		if err := b.reload(ctx); err != nil {
			b.view.ShowError(err)
			return err
		}
	}
	return nil
}

// wait sleeps for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
