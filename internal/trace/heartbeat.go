package trace

import (
	"strconv"
	"sync"
	"time"
)

// Heartbeat emits periodic events so that a stalled session shows up as
// heartbeats with no span ends between them.
type Heartbeat struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// StartHeartbeat starts emitting to tracer every interval. It returns nil
// when tracing is off or interval is not positive; Stop on nil is a no-op.
func StartHeartbeat(tracer Tracer, interval time.Duration) *Heartbeat {
	if tracer == nil || !tracer.Enabled() || interval <= 0 {
		return nil
	}
	h := &Heartbeat{stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(h.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for n := 1; ; n++ {
			select {
			case at := <-ticker.C:
				tracer.Emit(&Event{
					Time:   at,
					Kind:   KindHeartbeat,
					Scope:  ScopeSession,
					Name:   "heartbeat",
					Detail: "#" + strconv.Itoa(n),
				})
			case <-h.stop:
				return
			}
		}
	}()
	return h
}

// Stop ends the heartbeat and waits for the goroutine to exit.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stop) })
	<-h.done
}
