package daemon

import "time"

// DefaultAddr is the well-known local endpoint g15daemon listens on.
const DefaultAddr = "localhost:15550"

// Greeting is sent verbatim by the daemon immediately after accept.
const Greeting = "G15 daemon HELLO"

// Screen-type tags. A client registers itself by sending one of these
// 4-byte tags right after the greeting.
const (
	ScreenText  = "TBUF"
	ScreenWBMP  = "WBUF"
	ScreenG15R  = "RBUF"
	ScreenPixel = "GBUF"
)

// Opcode is a single-byte daemon command. Opcodes that carry a value have it
// OR'd into their low bits.
type Opcode byte

const (
	OpKeyHandler       Opcode = 0x10 // value 0-8: claim extra-key delivery
	OpMKeyLEDs         Opcode = 0x20 // value 0-8: M-key LED bitmask
	OpContrast         Opcode = 0x40 // value 0-4
	OpBacklight        Opcode = 0x80 // value 0-4
	OpGetKeystate      Opcode = 0x6b // 4-byte key-state response
	OpSwitchPriorities Opcode = 0x70
	OpIsUserSelected   Opcode = 0x75 // 2-byte boolean response
	OpIsForeground     Opcode = 0x76 // 2-byte boolean response
)

// DefaultRetryInterval is the pause between reconnection attempts.
const DefaultRetryInterval = 10 * time.Second

// maxValue returns the largest value the opcode's low bits accept, or -1 for
// opcodes that carry no value.
func maxValue(op Opcode) int {
	switch op {
	case OpKeyHandler, OpMKeyLEDs:
		return 1 << 3
	case OpContrast, OpBacklight:
		return 1 << 2
	default:
		return -1
	}
}
