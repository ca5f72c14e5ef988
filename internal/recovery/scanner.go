package recovery

import (
	"fmt"

	recoveryerrors "github.com/voxstore/voxdb/internal/errors"
	"github.com/voxstore/voxdb/internal/wal"
)

// scan is the Initial Scanner (C4, §4.4): one linear walk over every log
// file in order, populating the transaction registry and the Pass-1
// dropped-collection snapshot. No data is mutated.
func (e *Engine) scan(paths []string) error {
	for _, path := range paths {
		if err := e.pageAdvisor.AdviseSequential(path); err != nil {
			e.logger.Warn("advise sequential on %s: %v", path, err)
		}

		if err := e.scanFile(path); err != nil {
			return fmt.Errorf("recovery: %w: scan %s: %v", recoveryerrors.ErrRecovery, path, err)
		}

		if err := e.pageAdvisor.AdviseRandom(path); err != nil {
			e.logger.Warn("advise random on %s: %v", path, err)
		}

		empty, err := e.enumerator.IsEmpty(path)
		if err != nil {
			e.logger.Warn("classify %s as empty: %v", path, err)
			continue
		}
		if empty {
			e.state.emptyLogfiles = append(e.state.emptyLogfiles, path)
		}
	}
	return nil
}

func (e *Engine) scanFile(path string) error {
	r := wal.NewReader(path, e.logger)
	if err := r.Open(); err != nil {
		return err
	}
	defer r.Close()

	for {
		m, err := r.Next()
		if err != nil {
			return err
		}
		if m == nil {
			return nil
		}

		e.state.bumpTick(m.Tick) // I1
		e.report.MarkerCounts[m.Type.String()]++

		switch m.Type {
		case wal.MarkerBeginTransaction, wal.MarkerBeginRemoteTransaction:
			e.state.failedTransactions[m.TransactionID] = &failedTransaction{DatabaseID: m.DatabaseID}

		case wal.MarkerCommitTransaction, wal.MarkerCommitRemoteTransaction:
			delete(e.state.failedTransactions, m.TransactionID)

		case wal.MarkerAbortTransaction:
			e.state.failedTransactions[m.TransactionID] = &failedTransaction{DatabaseID: m.DatabaseID, Aborted: true}

		case wal.MarkerAbortRemoteTransaction:
			delete(e.state.failedTransactions, m.TransactionID)
			e.state.failedTransactions[m.TransactionID] = &failedTransaction{DatabaseID: m.DatabaseID, Aborted: true}

		case wal.MarkerDropCollection:
			e.state.willBeDroppedCollections[m.CollectionID] = true
		}
	}
}
