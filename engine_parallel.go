package pagelogic

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/jward/pagelogic/internal/store"
)

// compileFilesParallel compiles pages using a three-phase parallel pipeline:
//
//	Phase A (serial):   Hash check, delete old data, prepare page records.
//	Phase B (parallel): Parse and compile via worker pool into BatchedStores.
//	Phase C (serial):   Commit batches to SQLite, record page stats.
func (e *Engine) compileFilesParallel(ctx context.Context, paths []string, force bool) error {
	var errs []error

	// ---- Phase A: Serial page preparation ----
	var items []workItem
	for _, path := range paths {
		item, skip, err := e.preparePage(path, force)
		if err != nil {
			errs = append(errs, fmt.Errorf("prepare %s: %w", path, err))
			continue
		}
		if skip {
			continue
		}
		item.batch = store.NewBatchedStore()
		items = append(items, item)
	}

	if len(items) > 0 {
		// ---- Phase B: Parallel compilation ----
		numWorkers := max(min(runtime.NumCPU(), len(items)), 1)

		workCh := make(chan workItem, len(items))
		for _, item := range items {
			workCh <- item
		}
		close(workCh)

		type result struct {
			item  workItem
			stats pageStats
			err   error
		}
		resultCh := make(chan result, len(items))

		var wg sync.WaitGroup
		for range numWorkers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				// Each item has its own BatchedStore; parsers are created per
				// call, so workers share nothing mutable.
				for item := range workCh {
					stats, err := e.compilePage(ctx, item, item.batch)
					resultCh <- result{item: item, stats: stats, err: err}
				}
			}()
		}

		go func() {
			wg.Wait()
			close(resultCh)
		}()

		// ---- Phase C: Serial commit ----
		for res := range resultCh {
			if res.err != nil {
				errs = append(errs, fmt.Errorf("compile %s: %w", res.item.path, res.err))
				continue
			}
			if err := e.store.CommitBatch(res.item.batch); err != nil {
				errs = append(errs, fmt.Errorf("commit %s: %w", res.item.path, err))
				continue
			}
			if err := e.store.UpdatePageStats(res.item.pageID, res.stats.scopes, res.stats.errors); err != nil {
				errs = append(errs, fmt.Errorf("commit %s: %w", res.item.path, err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("parallel compiling had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}
