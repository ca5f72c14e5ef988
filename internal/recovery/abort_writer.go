package recovery

import (
	"fmt"
	"sort"

	"github.com/voxstore/voxdb/internal/wal"
)

// writeAborts is the Abort Writer (C6, §4.6): for every transaction still
// open at the end of replay, append a compensating ABORT_TRANSACTION marker
// through the live WAL writer. tids are sorted first only for deterministic
// output ordering; it has no bearing on correctness (P3).
func (e *Engine) writeAborts() error {
	tids := make([]uint64, 0, len(e.state.failedTransactions))
	for tid, tx := range e.state.failedTransactions {
		if !tx.Aborted {
			tids = append(tids, tid)
		}
	}
	sort.Slice(tids, func(i, j int) bool { return tids[i] < tids[j] })

	for _, tid := range tids {
		tx := e.state.failedTransactions[tid]
		e.state.bumpTick(e.state.lastTick + 1)

		encoded, err := wal.EncodeAbortTransaction(e.state.lastTick, tx.DatabaseID, tid)
		if err != nil {
			return fmt.Errorf("recovery: encode abort marker for tid %d: %w", tid, err)
		}
		if err := e.walWriter.AllocateAndWrite(encoded, false); err != nil {
			return fmt.Errorf("recovery: append abort marker for tid %d: %w", tid, err)
		}

		tx.Aborted = true
		e.report.AbortsWritten++
	}
	return nil
}
