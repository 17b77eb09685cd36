// Package keystate decodes g15daemon key-state snapshots.
//
// The daemon reports the extra keys of the keyboard as a single 32-bit
// bitmask. Comparing two snapshots yields the set of keys that were pressed
// or released in between; this package turns that diff into named events in
// a fixed order (G keys, then M keys, then L keys).
package keystate

import (
	"fmt"
	"strconv"
)

// Event is a single named key transition between two snapshots.
type Event struct {
	Name    string
	Pressed bool
}

// Bit positions within a key-state snapshot. G1-G18 occupy the low bits;
// G19-G22 sit in the top four bits of the mask, above the M and L groups,
// but are still named contiguously.
var gBits = [22]uint{
	0, 1, 2, 3, 4, 5, 6, 7, 8, 9,
	10, 11, 12, 13, 14, 15, 16, 17,
	28, 29, 30, 31,
}

var mBits = [4]uint{18, 19, 20, 21}

var lBits = [5]uint{22, 23, 24, 25, 26}

// LightBit is the backlight-toggle key. It is present in the mask but never
// surfaced as a key event.
const LightBit = 27

// Decode compares two key-state snapshots and returns one event per changed
// bit: G keys first, then M keys, then L keys, each group in ascending bit
// order. Pressed reflects the bit's value in next.
func Decode(prev, next uint32) []Event {
	changed := prev ^ next
	if changed == 0 {
		return nil
	}
	var events []Event
	emit := func(name string, bit uint) {
		if changed&(1<<bit) != 0 {
			events = append(events, Event{Name: name, Pressed: next&(1<<bit) != 0})
		}
	}
	for i, bit := range gBits {
		emit("G"+strconv.Itoa(i+1), bit)
	}
	for i, bit := range mBits {
		if i < 3 {
			emit("M"+strconv.Itoa(i+1), bit)
		} else {
			emit("MR", bit)
		}
	}
	for i, bit := range lBits {
		emit("L"+strconv.Itoa(i+1), bit)
	}
	return events
}

// LEDMask returns the MKeyLEDs command value that lights the LED group named
// by an M/L key ("M1".."M4" or equivalent): a mask with bit digit-1 set.
func LEDMask(name string) (uint8, error) {
	if len(name) < 2 {
		return 0, fmt.Errorf("keystate: invalid led key %q", name)
	}
	d := name[1] - '0'
	if d < 1 || d > 4 {
		return 0, fmt.Errorf("keystate: invalid led key %q", name)
	}
	return 1 << (d - 1), nil
}
