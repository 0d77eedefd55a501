package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/chazu/meshql/pkg/ql"
)

// EvalTimeout is the default limit for a single evaluation.
const EvalTimeout = 30 * time.Second

// evalResult passes evaluation results through channels.
type evalResult struct {
	session *ql.Session
	errors  []EvalError
	err     error
}

// waitWithTimeout waits for a result from ch, but returns a timeout error
// if the evaluation exceeds timeout. It uses a generation counter to
// discard stale results from previous evaluations.
//
// A discarded or late result still holds an engine; its session is closed.
func waitWithTimeout(
	ch <-chan evalResult,
	gen uint64,
	timeout time.Duration,
	mu *sync.Mutex,
	currentGen *uint64,
) (*ql.Session, []EvalError, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		mu.Lock()
		current := *currentGen
		mu.Unlock()

		if gen != current {
			release(res)
			return nil, nil, fmt.Errorf("evaluation superseded by newer request")
		}

		return res.session, res.errors, res.err

	case <-timer.C:
		go func() { release(<-ch) }()
		return nil, nil, fmt.Errorf("evaluation timed out after %s", timeout)
	}
}

func release(res evalResult) {
	if res.session != nil {
		_ = res.session.Close()
	}
}
