package core

import (
	"errors"
	"fmt"
)

var (
	ErrJobSubmission = errors.New("face search job submission failed")
	ErrJobFailed     = errors.New("face search job failed")
	ErrJobTimeout    = errors.New("face search job timed out")
	ErrPageFetch     = errors.New("face search page fetch failed")
	ErrPersistence   = errors.New("record persistence failed")
)

type Stage string

const (
	StagePoller     Stage = "poller"
	StageAggregator Stage = "aggregator"
	StageReconciler Stage = "reconciler"
	StageScorer     Stage = "scorer"
	StageWriter     Stage = "writer"
)

// StageError attributes a pipeline failure to the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var existing *StageError
	if errors.As(err, &existing) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// FailedStage returns the stage attached to err, if any.
func FailedStage(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
