package recovery

import (
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/voxstore/voxdb/internal/storage"
)

// buildIndexes is the Index Builder (C7, §4.7): for every collection
// flagged needsIndexRebuild, re-enable secondary indexes and bulk-refill
// them. Independent collections fill concurrently on a bounded ants pool,
// since by this point replay has stopped mutating shared state and each
// fill only touches its own collection's index structures (§5). Once one
// fill fails, fills that have not started yet are skipped; the first error
// is returned after the in-flight fills finish.
func (e *Engine) buildIndexes() error {
	var targets []*storage.Collection
	for cid, needed := range e.state.needsIndexRebuild {
		if !needed {
			continue
		}
		col, ok := e.state.openedCollections[cid]
		if !ok {
			continue
		}
		targets = append(targets, col)
	}
	if len(targets) == 0 {
		return nil
	}

	pool, err := ants.NewPool(e.cfg.IndexBuildWorkers)
	if err != nil {
		return fmt.Errorf("recovery: create index build pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for _, col := range targets {
		col := col
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			mu.Lock()
			failed := firstErr != nil
			mu.Unlock()
			if failed {
				return
			}
			col.UseSecondaryIndexes(true)
			if err := col.FillIndexes(); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("recovery: fill indexes for collection %q: %w", col.CollectionName(), err)
				}
				mu.Unlock()
			}
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("recovery: submit index fill for collection %q: %w", col.CollectionName(), submitErr)
			}
			mu.Unlock()
		}
	}

	wg.Wait()
	return firstErr
}
