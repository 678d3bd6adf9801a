package ingest

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/bobg/ethbs"
)

// ErrFeedClosed is returned when starting a Feed after Close.
var ErrFeedClosed = errors.New("feed closed")

// Tracker is a source of new-block events,
// such as a JSON-RPC block tracker polling an Ethereum node.
type Tracker interface {
	Start(context.Context) error
	Stop() error

	// Blocks is the channel on which new blocks appear while the tracker is started.
	// Closing it means the tracker has ended for good:
	// a Loop reading from it returns to stopped.
	Blocks() <-chan ethbs.BlockParams
}

var _ Tracker = &Feed{}

// Feed is a Tracker whose blocks are supplied by calls to Publish.
type Feed struct {
	ch      chan ethbs.BlockParams
	closing chan struct{}
	once    sync.Once

	mu      sync.RWMutex
	running bool
	closed  bool
}

// NewFeed produces a stopped Feed whose channel holds up to buf unconsumed blocks.
func NewFeed(buf int) *Feed {
	return &Feed{
		ch:      make(chan ethbs.BlockParams, buf),
		closing: make(chan struct{}),
	}
}

func (f *Feed) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrFeedClosed
	}
	f.running = true
	return nil
}

func (f *Feed) Stop() error {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	return nil
}

func (f *Feed) Blocks() <-chan ethbs.BlockParams {
	return f.ch
}

// Close ends the feed, closing its block channel.
// Blocks already buffered are still delivered.
func (f *Feed) Close() {
	f.once.Do(func() {
		close(f.closing)

		f.mu.Lock()
		f.closed = true
		f.running = false
		close(f.ch)
		f.mu.Unlock()
	})
}

// Publish emits p if the feed is started.
// It reports whether p was emitted.
// It blocks while the channel is full.
func (f *Feed) Publish(ctx context.Context, p ethbs.BlockParams) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.running || f.closed {
		return false, nil
	}
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-f.closing:
		return false, nil
	case f.ch <- p:
		return true, nil
	}
}
