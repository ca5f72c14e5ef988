package errors

import goerrors "errors"

// Treatment is the action the replayer takes for a given collaborator error,
// per the error-handling design table: some outcomes are silently skipped,
// some upgrade the current operation, some are fatal, and everything else
// is logged and counted against errorCount.
type Treatment int

const (
	TreatmentSkip Treatment = iota
	TreatmentUpgradeToUpdate
	TreatmentFatal
	TreatmentLogAndCount
)

// Classifier maps a collaborator error onto its replay treatment.
type Classifier struct{}

func NewClassifier() *Classifier {
	return &Classifier{}
}

func (c *Classifier) Classify(err error, ignoreRecoveryErrors bool) Treatment {
	if err == nil {
		return TreatmentLogAndCount
	}

	switch {
	case goerrors.Is(err, ErrDatabaseNotFound), goerrors.Is(err, ErrCollectionNotFound), goerrors.Is(err, ErrConflict):
		return TreatmentSkip
	case goerrors.Is(err, ErrUniqueConstraintViolated):
		return TreatmentUpgradeToUpdate
	case goerrors.Is(err, ErrCorruptedCollection):
		if ignoreRecoveryErrors {
			return TreatmentLogAndCount
		}
		return TreatmentFatal
	default:
		return TreatmentLogAndCount
	}
}
