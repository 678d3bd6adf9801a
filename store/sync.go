package store

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/ethbs"
)

// Sync synchronizes two or more stores.
// It runs ListRefs on all input stores.
// When a CID is found to be in some but not all stores,
// its blob is added to the stores where it's missing.
func Sync(ctx context.Context, stores []ethbs.Store) error {
	if len(stores) < 2 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, ctx2 := errgroup.WithContext(ctx)

	chans := make([]chan ethbs.CID, len(stores))
	for i, s := range stores {
		i, s := i, s
		chans[i] = make(chan ethbs.CID)
		eg.Go(func() error {
			defer close(chans[i])
			return s.ListRefs(ctx2, ethbs.Zero, func(c ethbs.CID) error {
				select {
				case <-ctx2.Done():
					return ctx2.Err()
				case chans[i] <- c:
				}
				return nil
			})
		})
	}

	type head struct {
		c  ethbs.CID
		ok bool
	}
	heads := make([]head, len(stores))
	advance := func(i int) {
		c, ok := <-chans[i]
		heads[i] = head{c: c, ok: ok}
	}
	for i := range stores {
		advance(i)
	}

	err := func() error {
		for {
			var (
				c     ethbs.CID
				found bool
			)
			for _, h := range heads {
				if h.ok && (!found || h.c.Less(c)) {
					c, found = h.c, true
				}
			}
			if !found {
				// End of input on all channels.
				return nil
			}

			var havers, needers []int
			for i, h := range heads {
				if h.ok && h.c == c {
					havers = append(havers, i)
				} else {
					needers = append(needers, i)
				}
			}

			if len(needers) > 0 {
				blob, err := stores[havers[0]].Get(ctx, c)
				if err != nil {
					return errors.Wrapf(err, "getting blob for %s", c)
				}
				for _, i := range needers {
					if _, _, err = stores[i].Put(ctx, c.Codec, blob); err != nil {
						return errors.Wrapf(err, "storing blob for %s", c)
					}
				}
			}

			for _, i := range havers {
				advance(i)
			}
		}
	}()
	if err != nil {
		cancel()
		eg.Wait()
		return err
	}
	return eg.Wait()
}
