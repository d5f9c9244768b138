package bulk

import "fmt"

// PartialBatchFailure reports a copy phase that stopped partway. Copies
// before Index are in place; no source was deleted.
type PartialBatchFailure struct {
	PlanID      string
	Index       int
	Source      string
	Destination string
	Completed   int
	Err         error
}

func (e *PartialBatchFailure) Error() string {
	return fmt.Sprintf("plan %s: copy %d (%s -> %s) failed after %d completed: %v",
		e.PlanID, e.Index, e.Source, e.Destination, e.Completed, e.Err)
}

func (e *PartialBatchFailure) Unwrap() error {
	return e.Err
}
