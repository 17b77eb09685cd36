package profile

import (
	"encoding/json"
	"fmt"
)

// BindingKind selects which shape a Binding was parsed from.
type BindingKind int

const (
	// Single is a lone command string; it fires on key release only.
	Single BindingKind = iota
	// Sequence is a list of command strings, also release-only.
	Sequence
	// PhasePair carries separate commands for press and release.
	PhasePair
)

// Binding is the action associated with one key. The on-disk representation
// is polymorphic (string, array of strings, or {"pressed","released"}
// object); the shape is decided once at parse time, not at dispatch time.
type Binding struct {
	Kind     BindingKind
	Command  string   // Single
	Commands []string // Sequence
	Pressed  string   // PhasePair; empty = no action for that phase
	Released string
}

// Bind wraps a single command string into a release-only Binding.
func Bind(cmd string) Binding {
	return Binding{Kind: Single, Command: cmd}
}

// Resolve returns the command strings to run for the given phase, in order.
// Single and Sequence bindings never fire on press.
func (b Binding) Resolve(pressed bool) []string {
	switch b.Kind {
	case Single:
		if pressed {
			return nil
		}
		return []string{b.Command}
	case Sequence:
		if pressed {
			return nil
		}
		return b.Commands
	case PhasePair:
		cmd := b.Released
		if pressed {
			cmd = b.Pressed
		}
		if cmd == "" {
			return nil
		}
		return []string{cmd}
	}
	return nil
}

type phasePair struct {
	Pressed  string `json:"pressed,omitempty"`
	Released string `json:"released,omitempty"`
}

func (b *Binding) UnmarshalJSON(data []byte) error {
	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	switch probe.(type) {
	case string:
		b.Kind = Single
		return json.Unmarshal(data, &b.Command)
	case []any:
		b.Kind = Sequence
		return json.Unmarshal(data, &b.Commands)
	case map[string]any:
		var pp phasePair
		if err := json.Unmarshal(data, &pp); err != nil {
			return err
		}
		b.Kind = PhasePair
		b.Pressed = pp.Pressed
		b.Released = pp.Released
		return nil
	}
	return fmt.Errorf("profile: binding must be a string, array or object, got %s", data)
}

func (b Binding) MarshalJSON() ([]byte, error) {
	switch b.Kind {
	case Single:
		return json.Marshal(b.Command)
	case Sequence:
		return json.Marshal(b.Commands)
	case PhasePair:
		return json.Marshal(phasePair{Pressed: b.Pressed, Released: b.Released})
	}
	return nil, fmt.Errorf("profile: unknown binding kind %d", b.Kind)
}
