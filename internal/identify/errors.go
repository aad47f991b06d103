package identify

import "fmt"

// Stage names the pipeline phase where a fatal failure occurred.
type Stage string

const (
	StageWorkspace Stage = "workspace"
	StageFetch     Stage = "fetch"
	StageSplit     Stage = "split"
)

// StageError is a fatal, request-aborting failure tagged with the stage
// that produced it. Per-segment recognition failures never become a
// StageError; they are absorbed as outcomes and the run continues.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
