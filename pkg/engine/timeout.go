package engine

import (
	"errors"
	"fmt"
	"time"
)

// EvalTimeout is the default hard limit for a single evaluation.
const EvalTimeout = 5 * time.Second

// ErrSuperseded is returned when a newer evaluation started before this one
// finished.
var ErrSuperseded = errors.New("evaluation superseded by newer request")

// TimeoutError reports an evaluation that overran its limit.
type TimeoutError struct {
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("evaluation timed out after %s", e.Limit)
}

// outcome carries one evaluation back from its goroutine.
type outcome struct {
	result *Result
	errors []EvalError
	err    error
}

// await blocks for the outcome of evaluation gen. An evaluation that
// overruns keeps running in the background; whatever it sends later is
// never read.
func (e *Engine) await(ch <-chan outcome, gen uint64) (*Result, []EvalError, error) {
	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case o := <-ch:
		if !e.current(gen) {
			return nil, nil, ErrSuperseded
		}
		return o.result, o.errors, o.err
	case <-timer.C:
		return nil, nil, &TimeoutError{Limit: e.timeout}
	}
}

func (e *Engine) current(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return gen == e.generation
}
