package pipeline

import "fmt"

// Pipeline stages, in execution order.
const (
	StageConfig       = "config"
	StageInterconnect = "interconnect"
	StageSynthesize   = "synthesize"
	StageEvaluate     = "evaluate"
	StageMu           = "mu"
	StageSimulate     = "simulate"
)

// StageError records which stage of a run failed.
type StageError struct {
	Stage   string
	Wrapped error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Wrapped)
}

func (e *StageError) Unwrap() error {
	return e.Wrapped
}

func stageErr(stage string, err error) error {
	return &StageError{Stage: stage, Wrapped: err}
}
