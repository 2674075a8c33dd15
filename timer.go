package main

import (
	"time"
)

// roundTimer owns the single pending deadline a room may have, covering
// either the response window or the vote window. Arming always cancels the
// previous deadline, so a room never has two in flight. Fires that lose the
// race with cancellation are additionally filtered by the round token
// captured at arm time.
type roundTimer struct {
	t *time.Timer
}

func (rt *roundTimer) arm(d time.Duration, fire func()) {
	rt.cancel()
	rt.t = time.AfterFunc(d, fire)
}

func (rt *roundTimer) cancel() {
	if rt.t != nil {
		rt.t.Stop()
		rt.t = nil
	}
}
