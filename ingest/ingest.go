// Package ingest receives new blocks from a Tracker,
// stores their headers,
// and passes the resulting block records on.
package ingest

import (
	"context"
	"sync"

	"github.com/bitmark-inc/logger"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/bobg/ethbs"
	"github.com/bobg/ethbs/node"
)

var (
	ErrTracking    = errors.New("already tracking")
	ErrNotTracking = errors.New("not tracking")
)

// Loop is the ingest loop.
// It is either stopped (initially) or tracking.
type Loop struct {
	tracker Tracker
	node    node.Node
	sem     *semaphore.Weighted
	log     *logger.L
	out     chan ethbs.Block

	mu       sync.Mutex
	tracking bool
	cancel   context.CancelFunc
	done     chan struct{}
	ended    chan struct{}

	persists sync.WaitGroup
}

// New produces a stopped Loop that reads from t and stores into n,
// with at most maxInFlight header writes outstanding.
func New(t Tracker, n node.Node, maxInFlight int) *Loop {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Loop{
		tracker: t,
		node:    n,
		sem:     semaphore.NewWeighted(int64(maxInFlight)),
		log:     logger.New("ingest"),
		out:     make(chan ethbs.Block),
		ended:   make(chan struct{}, 1),
	}
}

// Blocks is the channel of block records produced while tracking.
func (l *Loop) Blocks() <-chan ethbs.Block {
	return l.out
}

// Ended delivers a value each time tracking stops
// because the tracker closed its block channel rather than because of a call to Stop.
// The loop is then stopped and may be started again.
func (l *Loop) Ended() <-chan struct{} {
	return l.ended
}

// Tracking tells whether l is in the tracking state.
func (l *Loop) Tracking() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tracking
}

// Start moves l from stopped to tracking.
// Tracking continues until Stop is called
// or the tracker closes its block channel.
// Values in ctx carry over to the loop but its cancellation does not.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tracking {
		return ErrTracking
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := l.tracker.Start(runCtx); err != nil {
		cancel()
		return errors.Wrap(err, "starting tracker")
	}
	l.tracking = true
	l.cancel = cancel
	l.done = make(chan struct{})

	go l.run(runCtx, l.done)

	l.log.Info("tracking started")
	return nil
}

// Stop moves l from tracking to stopped.
// Header writes already under way are not interrupted;
// use Wait to wait for them.
func (l *Loop) Stop() error {
	l.mu.Lock()
	if !l.tracking {
		l.mu.Unlock()
		return ErrNotTracking
	}
	l.tracking = false
	l.cancel()
	done := l.done
	l.mu.Unlock()

	<-done

	err := l.tracker.Stop()
	l.log.Info("tracking stopped")
	return errors.Wrap(err, "stopping tracker")
}

// Wait waits for outstanding header writes to finish.
func (l *Loop) Wait() {
	l.persists.Wait()
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	blocks := l.tracker.Blocks()
	for {
		select {
		case <-ctx.Done():
			return

		case p, ok := <-blocks:
			if !ok {
				l.trackerClosed(done)
				return
			}
			b, err := l.Ingest(ctx, p)
			if err != nil {
				l.log.Errorf("ingesting block %s: %s", p.Number, err)
				continue
			}
			select {
			case <-ctx.Done():
				return
			case l.out <- b:
			}
		}
	}
}

// trackerClosed moves l to stopped after the tracker's channel closes,
// unless a concurrent Stop or restart got there first.
func (l *Loop) trackerClosed(done chan struct{}) {
	l.mu.Lock()
	current := l.tracking && l.done == done
	if current {
		l.tracking = false
		l.cancel()
	}
	l.mu.Unlock()

	if !current {
		return
	}
	if err := l.tracker.Stop(); err != nil {
		l.log.Errorf("stopping tracker: %s", err)
	}
	l.log.Warn("tracker closed its block channel, tracking stopped")

	select {
	case l.ended <- struct{}{}:
	default:
	}
}

// Ingest converts p to its canonical header form,
// computes its CID,
// and starts storing it.
// Storage happens in the background and its failures are only logged.
func (l *Loop) Ingest(ctx context.Context, p ethbs.BlockParams) (ethbs.Block, error) {
	h, err := ethbs.HeaderFromParams(p)
	if err != nil {
		return ethbs.Block{}, err
	}
	blob, err := ethbs.EncodeHeader(h)
	if err != nil {
		return ethbs.Block{}, err
	}
	var (
		c      = ethbs.HeaderCID(h)
		number = h.Number.Uint64()
	)

	if err = l.sem.Acquire(ctx, 1); err != nil {
		l.log.Warnf("not storing block %d: %s", number, err)
	} else {
		l.persists.Add(1)
		go func() {
			defer l.persists.Done()
			defer l.sem.Release(1)

			if err := l.node.Put(context.WithoutCancel(ctx), blob, c); err != nil {
				l.log.Errorf("storing block %d (%s): %s", number, c, err)
				return
			}
			l.log.Debugf("stored block %d as %s", number, c)
		}()
	}

	return ethbs.Block{CID: c.String(), Hash: h.Hash().Hex(), Number: number}, nil
}
