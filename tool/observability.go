package tool

import (
	"sync"
	"time"
)

// CallObservation captures one invocation outcome.
type CallObservation struct {
	ToolName   string
	Origin     string
	RequestID  string
	StatusCode int
	ErrorCode  string
	Duration   time.Duration
}

// Success reports whether the call ended with a 2xx status.
func (o CallObservation) Success() bool {
	return o.StatusCode >= 200 && o.StatusCode < 300
}

// Observer receives invocation observability events.
type Observer interface {
	ObserveCall(observation CallObservation)
}

type noopObserver struct{}

func (noopObserver) ObserveCall(CallObservation) {}

var (
	observerMu     sync.RWMutex
	activeObserver Observer = noopObserver{}
)

// SetObserver sets the process-wide invocation observer. Nil restores the no-op.
func SetObserver(observer Observer) {
	observerMu.Lock()
	defer observerMu.Unlock()
	if observer == nil {
		activeObserver = noopObserver{}
		return
	}
	activeObserver = observer
}

// ObserveCall forwards observation to the process-wide observer.
func ObserveCall(observation CallObservation) {
	observerMu.RLock()
	observer := activeObserver
	observerMu.RUnlock()
	observer.ObserveCall(observation)
}
