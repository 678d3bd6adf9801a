// Package replica implements a blob store that writes through to several nested stores.
package replica

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/ethbs"
	"github.com/bobg/ethbs/store"
)

var _ ethbs.Store = (*Store)(nil)

// Store is a blob store that delegates reads and writes to two sets of nested stores.
// One set is synchronous:
// writes to all of these must succeed before a call to Put returns,
// and an error from any will cause Put to fail.
// The other set is asynchronous:
// a call to Put queues writes on these stores but does not wait for them to finish.
// However, if any asynchronous write encounters an error,
// the whole Store is put into an error state and further operations will fail.
type Store struct {
	sync   []ethbs.Store
	async  []asyncChans
	cancel context.CancelFunc

	mu  sync.Mutex // protects err
	err error      // the error from an async goroutine, if any
}

type asyncReq struct {
	codec ethbs.Codec
	blob  []byte
}

type asyncChans struct {
	reqs chan<- asyncReq
	errs <-chan error
}

// New produces a new Store.
// The set of synchronous stores must be non-empty.
// The set of asynchronous stores may be empty.
// If there are any asynchronous stores,
// goroutines are launched for them,
// and canceling the given context object causes those to exit,
// placing the Store in an error state.
//
// Normally, writes to asynchronous stores do not block calls to Put,
// but the queue for each nested store has a fixed length given by n,
// which must be 1 or greater.
// If any async store falls too far behind,
// Put will block until all requests can be queued.
func New(ctx context.Context, sync []ethbs.Store, async []ethbs.Store, n int) *Store {
	result := &Store{sync: sync}

	if len(async) > 0 {
		ctx, result.cancel = context.WithCancel(ctx)

		selectCases := make([]reflect.SelectCase, 1+len(async))

		for i, a := range async {
			var (
				reqs = make(chan asyncReq, n)
				errs = make(chan error, 1)
			)

			result.async = append(result.async, asyncChans{reqs: reqs, errs: errs})

			selectCases[i].Dir = reflect.SelectRecv
			selectCases[i].Chan = reflect.ValueOf(errs)

			go runAsync(ctx, a, reqs, errs)
		}

		selectCases[len(async)].Dir = reflect.SelectRecv
		selectCases[len(async)].Chan = reflect.ValueOf(ctx.Done())

		go func() {
			_, errval, ok := reflect.Select(selectCases)
			result.cancel()
			result.mu.Lock()
			if ok {
				result.err = errval.Interface().(error)
			} else {
				result.err = context.Canceled
			}
			result.mu.Unlock()
		}()
	}

	return result
}

// Runs as a goroutine until ctx is canceled or an error occurs (which it writes to errs).
func runAsync(ctx context.Context, s ethbs.Store, reqs <-chan asyncReq, errs chan<- error) {
	defer close(errs)

	for {
		select {
		case <-ctx.Done():
			errs <- ctx.Err()
			return

		case req := <-reqs:
			_, _, err := s.Put(ctx, req.codec, req.blob)
			if err != nil {
				errs <- err
				return
			}
		}
	}
}

// Put implements ethbs.Store.Put.
// The blob is stored in all synchronous nested stores.
// An error from any of them causes Put to return an error.
//
// Some nested stores may already have the blob and others may not,
// in which case `added` is true if any of them added it.
//
// A request to write the blob is queued for any asynchronous nested stores.
// Normally this does not block the call to Put,
// but if any async store falls too far behind,
// Put must wait for space to open in its request queue before proceeding.
// The size of this queue is given by the int passed to New.
func (s *Store) Put(ctx context.Context, codec ethbs.Codec, blob []byte) (ethbs.CID, bool, error) {
	if err := s.checkErr(); err != nil {
		return ethbs.Zero, false, errors.Wrap(err, "in async-store goroutine")
	}

	var (
		mu    sync.Mutex
		added bool
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, st := range s.sync {
		st := st
		g.Go(func() error {
			_, a, err := st.Put(gctx, codec, blob)
			if err != nil {
				return err
			}
			mu.Lock()
			added = added || a
			mu.Unlock()
			return nil
		})
	}

	for _, a := range s.async {
		select {
		case <-ctx.Done():
			return ethbs.Zero, false, ctx.Err()

		case a.reqs <- asyncReq{codec: codec, blob: blob}:
		}
	}

	err := g.Wait()
	if err != nil {
		return ethbs.Zero, false, err
	}
	return ethbs.NewCID(codec, blob), added, nil
}

// Get implements ethbs.Getter.
// It delegates the request to all of the synchronous stores in s.
// returning the result from the first one to respond without error
// and canceling the request to the others.
// If all synchronous stores respond with an error,
// one of those errors is returned.
func (s *Store) Get(ctx context.Context, c ethbs.CID) ([]byte, error) {
	if err := s.checkErr(); err != nil {
		return nil, errors.Wrap(err, "in async-store goroutine")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		blob []byte
		err  error
	}

	ch := make(chan result, len(s.sync))
	for _, st := range s.sync {
		st := st
		go func() {
			blob, err := st.Get(ctx, c)
			ch <- result{blob: blob, err: err}
		}()
	}

	var err error
	for range s.sync {
		r := <-ch
		if r.err == nil {
			return r.blob, nil
		}
		if err == nil || errors.Is(err, ethbs.ErrNotFound) {
			err = r.err
		}
	}
	return nil, err
}

// ListRefs implements ethbs.Getter.
// It delegates the request to all of the synchronous stores in s
// and synthesizes the result from the union of their CIDs.
func (s *Store) ListRefs(ctx context.Context, start ethbs.CID, f func(ethbs.CID) error) error {
	if err := s.checkErr(); err != nil {
		return errors.Wrap(err, "in async-store goroutine")
	}

	chans := make([]chan ethbs.CID, len(s.sync))
	for i := 0; i < len(s.sync); i++ {
		chans[i] = make(chan ethbs.CID, 1)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	for i, st := range s.sync {
		var (
			i  = i
			st = st
		)
		g.Go(func() error {
			defer close(chans[i])
			return st.ListRefs(gctx, start, func(c ethbs.CID) error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case chans[i] <- c:
					return nil
				}
			})
		})
	}

	// Each nested store produces its CIDs in order; merge them, dropping duplicates.
	type head struct {
		c  ethbs.CID
		ok bool
	}
	heads := make([]head, len(chans))
	for i, ch := range chans {
		c, ok := <-ch
		heads[i] = head{c: c, ok: ok}
	}

	for {
		bestIndex := -1
		for i, h := range heads {
			if !h.ok {
				continue
			}
			if bestIndex < 0 || h.c.Less(heads[bestIndex].c) {
				bestIndex = i
			}
		}
		if bestIndex < 0 {
			break
		}
		best := heads[bestIndex].c
		if err := f(best); err != nil {
			cancel()
			g.Wait()
			return err
		}
		for i, h := range heads {
			if h.ok && h.c == best {
				c, ok := <-chans[i]
				heads[i] = head{c: c, ok: ok}
			}
		}
	}

	return g.Wait()
}

func (s *Store) checkErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func nestedStores(ctx context.Context, conf map[string]interface{}, key string) ([]ethbs.Store, error) {
	items, ok := conf[key].([]interface{})
	if !ok {
		return nil, nil
	}
	var result []ethbs.Store
	for _, item := range items {
		nested, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf(`%q item is not an object`, key)
		}
		s, err := store.FromConfig(ctx, nested)
		if err != nil {
			return nil, errors.Wrapf(err, "creating nested %s store", key)
		}
		result = append(result, s)
	}
	return result, nil
}

func init() {
	store.Register("replica", func(ctx context.Context, conf map[string]interface{}) (ethbs.Store, error) {
		syncStores, err := nestedStores(ctx, conf, "sync")
		if err != nil {
			return nil, err
		}
		if len(syncStores) == 0 {
			return nil, errors.New(`missing "sync" parameter`)
		}
		asyncStores, err := nestedStores(ctx, conf, "async")
		if err != nil {
			return nil, err
		}

		queueLen := int64(10)
		switch v := conf["queuelen"].(type) {
		case json.Number:
			queueLen, err = v.Int64()
			if err != nil {
				return nil, errors.Wrapf(err, "parsing queue length %v", v)
			}
		case float64:
			queueLen = int64(v)
		}

		return New(ctx, syncStores, asyncStores, int(queueLen)), nil
	})
}
