// Package input wraps the host input layer: synthesizing key and button
// events through a uinput virtual device, and capturing real key events from
// an evdev keyboard for macro recording.
package input

import (
	"fmt"

	evdev "github.com/holoplot/go-evdev"
)

// Injector synthesizes input events on the host. Codes are Linux input
// event codes, except mouse buttons 1-3 which use the conventional
// left/middle/right numbering.
type Injector interface {
	Key(code int, press bool) error
	Button(code int, press bool) error
	// Sync flushes a batch of injected events to the host.
	Sync() error
	Close() error
}

// X-style button numbers, as recorded macros and hand-written bindings use
// them. Anything above 3 is taken as a raw event code.
var buttonCodes = map[int]evdev.EvCode{
	1: evdev.BTN_LEFT,
	2: evdev.BTN_MIDDLE,
	3: evdev.BTN_RIGHT,
}

// UinputInjector injects events through a virtual uinput device.
type UinputInjector struct {
	dev *evdev.InputDevice
}

// NewUinputInjector creates the virtual device. Requires write access to
// /dev/uinput.
func NewUinputInjector(name string) (*UinputInjector, error) {
	codes := make([]evdev.EvCode, 0, 0x300)
	for c := evdev.EvCode(1); c < 0x300; c++ {
		codes = append(codes, c)
	}
	dev, err := evdev.CreateDevice(name,
		evdev.InputID{BusType: 0x03, Vendor: 0x046d, Product: 0xc222, Version: 1},
		map[evdev.EvType][]evdev.EvCode{evdev.EV_KEY: codes},
	)
	if err != nil {
		return nil, fmt.Errorf("create uinput device: %w", err)
	}
	return &UinputInjector{dev: dev}, nil
}

func (u *UinputInjector) Key(code int, press bool) error {
	return u.write(evdev.EvCode(code), press)
}

func (u *UinputInjector) Button(code int, press bool) error {
	ev, ok := buttonCodes[code]
	if !ok {
		ev = evdev.EvCode(code)
	}
	return u.write(ev, press)
}

func (u *UinputInjector) write(code evdev.EvCode, press bool) error {
	var value int32
	if press {
		value = 1
	}
	return u.dev.WriteOne(&evdev.InputEvent{Type: evdev.EV_KEY, Code: code, Value: value})
}

func (u *UinputInjector) Sync() error {
	return u.dev.WriteOne(&evdev.InputEvent{Type: evdev.EV_SYN, Code: evdev.SYN_REPORT})
}

func (u *UinputInjector) Close() error {
	return u.dev.Close()
}
