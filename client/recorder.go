package client

import (
	"github.com/g15tools/g15keys/command"
	"github.com/g15tools/g15keys/input"
)

// CaptureSession is the recorder's view of the event-capture service. Start
// returns a channel fed by the capture goroutine; after Stop the channel
// drains and closes.
type CaptureSession interface {
	Start() <-chan input.Event
	Stop()
}

// Recorder accumulates captured input events while a macro recording is
// live. The capture goroutine is the only channel writer and the event loop
// the only reader, so the token list has a single owner.
type Recorder struct {
	events <-chan input.Event
	stop   func()
	tokens []command.Token
}

func NewRecorder(session CaptureSession) *Recorder {
	r := &Recorder{stop: session.Stop}
	r.events = session.Start()
	return r
}

// Drain moves pending captured events into the token list without blocking.
func (r *Recorder) Drain() {
	for r.events != nil {
		select {
		case ev, ok := <-r.events:
			if !ok {
				r.events = nil
				return
			}
			r.append(ev)
		default:
			return
		}
	}
}

// Finish stops the capture feed, flushes everything still buffered and
// returns the recorded macro as an emit command string.
func (r *Recorder) Finish() string {
	r.stop()
	if r.events != nil {
		for ev := range r.events {
			r.append(ev)
		}
		r.events = nil
	}
	return "emit " + command.FormatTokens(r.tokens)
}

func (r *Recorder) append(ev input.Event) {
	r.tokens = append(r.tokens, command.Token{Kind: command.KeyToken, Press: ev.Press, Code: ev.Code})
}
