package input

import (
	"errors"
	"fmt"
	"log/slog"

	evdev "github.com/holoplot/go-evdev"
)

// Event is one observed key transition from a capture device.
type Event struct {
	Code  int
	Press bool
}

// captureBuffer bounds how far capture may run ahead of the consumer. The
// reader never blocks on the channel; overflow drops events instead.
const captureBuffer = 256

// Capture reads key events from an evdev keyboard and delivers them on a
// channel. One Capture serves one recording session: Start once, Stop once.
type Capture struct {
	dev    *evdev.InputDevice
	events chan Event
	logger *slog.Logger
}

// OpenCapture opens the device at path, or the first keyboard-looking device
// under /dev/input when path is empty.
func OpenCapture(path string, logger *slog.Logger) (*Capture, error) {
	var dev *evdev.InputDevice
	var err error
	if path != "" {
		dev, err = evdev.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open capture device: %w", err)
		}
	} else {
		dev, err = findKeyboard()
		if err != nil {
			return nil, err
		}
	}
	return &Capture{dev: dev, logger: logger}, nil
}

// Start begins reading on a background goroutine. The returned channel
// closes after Stop, once every buffered event has been delivered.
func (c *Capture) Start() <-chan Event {
	c.events = make(chan Event, captureBuffer)
	go c.readLoop()
	return c.events
}

// Stop closes the device; the read loop ends and closes the event channel.
func (c *Capture) Stop() {
	_ = c.dev.Close()
}

func (c *Capture) readLoop() {
	defer close(c.events)
	for {
		ev, err := c.dev.ReadOne()
		if err != nil {
			return
		}
		// value 2 is autorepeat; a macro only wants real transitions
		if ev.Type != evdev.EV_KEY || ev.Value > 1 {
			continue
		}
		e := Event{Code: int(ev.Code), Press: ev.Value == 1}
		select {
		case c.events <- e:
		default:
			c.logger.Warn("capture buffer full, dropping event", "code", e.Code)
		}
	}
}

// findKeyboard returns the first /dev/input device that advertises KEY_A and
// KEY_ENTER, i.e. an actual keyboard rather than a button pad.
func findKeyboard() (*evdev.InputDevice, error) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, fmt.Errorf("list input devices: %w", err)
	}
	for _, p := range paths {
		dev, err := evdev.Open(p.Path)
		if err != nil {
			continue
		}
		var hasA, hasEnter bool
		for _, code := range dev.CapableEvents(evdev.EV_KEY) {
			switch code {
			case evdev.KEY_A:
				hasA = true
			case evdev.KEY_ENTER:
				hasEnter = true
			}
		}
		if hasA && hasEnter {
			return dev, nil
		}
		dev.Close()
	}
	return nil, errors.New("input: no keyboard device found")
}
