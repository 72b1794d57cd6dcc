// Package stop implements a pattern for shutting down the long-running parts
// of a tracker or peer: listeners, the heartbeat monitor and HTTP servers.
package stop

import (
	"sync"
)

// Channel carries the errors of one asynchronous shutdown. The stopping side
// calls Done exactly once.
type Channel chan []error

// Result is the receiving side of a Channel.
type Result <-chan []error

// Done reports the non-nil errors in errs and closes the Channel.
func (ch Channel) Done(errs ...error) {
	var reported []error
	for _, err := range errs {
		if err != nil {
			reported = append(reported, err)
		}
	}
	if len(reported) > 0 {
		ch <- reported
	}
	close(ch)
}

// Result converts a Channel to a Result.
func (ch Channel) Result() Result {
	return Result((chan []error)(ch))
}

// Wait blocks until the shutdown finished and returns its errors.
func (r Result) Wait() []error {
	return <-r
}

// AlreadyStopped is a closed Result returned by components that were stopped
// before.
var AlreadyStopped Result

func init() {
	c := make(Channel)
	close(c)
	AlreadyStopped = c.Result()
}

// Stopper is implemented by anything that can be shut down.
//
// Stop must return immediately and perform the shutdown in another goroutine.
type Stopper interface {
	Stop() Result
}

// Func adapts a function to the Stopper interface.
type Func func() Result

// Stop calls f.
func (f Func) Stop() Result { return f() }

// Group stops several Stoppers at once.
type Group struct {
	mu       sync.Mutex
	stoppers []Stopper
}

// NewGroup allocates a new Group.
func NewGroup() *Group {
	return &Group{}
}

// Add appends Stoppers to the Group. Nil entries are ignored.
func (g *Group) Add(stoppers ...Stopper) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, s := range stoppers {
		if s != nil {
			g.stoppers = append(g.stoppers, s)
		}
	}
}

// AddFunc appends a Func to the Group.
func (g *Group) AddFunc(f Func) {
	g.Add(f)
}

// Stop stops all members concurrently and aggregates their errors.
func (g *Group) Stop() Result {
	g.mu.Lock()
	results := make([]Result, 0, len(g.stoppers))
	for _, s := range g.stoppers {
		r := s.Stop()
		if r == nil {
			panic("stop: received a nil Result from Stop")
		}
		results = append(results, r)
	}
	g.mu.Unlock()

	done := make(Channel)
	go func() {
		var errs []error
		for _, r := range results {
			errs = append(errs, r.Wait()...)
		}
		done.Done(errs...)
	}()

	return done.Result()
}
