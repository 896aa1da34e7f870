package vmock

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/viicommerce/vsession/vdef"
)

// StateChange is one notification received by TestObserver.
type StateChange struct {
	From, To vdef.State
	Name     string
}

// TestObserver implements vdef.Observer by logging to the test and
// buffering notifications on channels.
type TestObserver struct {
	t      testing.TB
	States chan StateChange
	Logs   chan string
	mu     sync.Mutex
	done   bool
}

var _ vdef.Observer = (*TestObserver)(nil)

func NewTestObserver(t testing.TB) *TestObserver {
	o := &TestObserver{
		t:      t,
		States: make(chan StateChange, 100),
		Logs:   make(chan string, 100),
	}
	// Logging after the test ends panics, so stop first.
	t.Cleanup(func() {
		o.mu.Lock()
		o.done = true
		o.mu.Unlock()
	})
	return o
}

func (o *TestObserver) OnStateChange(from, to vdef.State, name string) {
	o.mu.Lock()
	if o.done {
		o.mu.Unlock()
		return
	}
	o.t.Logf("%s: state %s -> %s (%s)", stamp(), from, to, name)
	o.mu.Unlock()

	select {
	case o.States <- StateChange{From: from, To: to, Name: name}:
	default:
	}
}

func (o *TestObserver) Logf(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	o.mu.Lock()
	if o.done {
		o.mu.Unlock()
		return
	}
	o.t.Logf("%s: log: %s", stamp(), msg)
	o.mu.Unlock()

	select {
	case o.Logs <- msg:
	default:
	}
}

// DrainLogs returns the buffered log lines.
func (o *TestObserver) DrainLogs() []string {
	var out []string
	for {
		select {
		case msg := <-o.Logs:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func stamp() string {
	now := time.Now()
	return fmt.Sprintf("%d.%03d", now.Second(), now.Nanosecond()/1e6)
}
