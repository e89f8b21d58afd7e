package feed

import (
	"context"

	"SignalDesk/internal/model"
)

// Feed defines the interface to the upstream signal feed.
type Feed interface {
	// FetchPending returns signals not yet processed, oldest first.
	FetchPending(ctx context.Context) ([]model.Signal, error)
	// MarkProcessed tells the feed a signal has been consumed.
	MarkProcessed(ctx context.Context, id string) error
	Name() string
}
