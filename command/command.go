// Package command parses binding command strings into a tagged variant. The
// grammar is small: four built-in forms recognized by prefix, with anything
// else treated as a shell command line.
package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// Kind discriminates the Command variant.
type Kind int

const (
	// Shell runs the string as an external process.
	Shell Kind = iota
	// SwitchProfile changes the active profile.
	SwitchProfile
	// SetLEDs lights the M-key LED groups named in the argument.
	SetLEDs
	// Emit injects a sequence of synthetic input events.
	Emit
	// Record starts a live macro recording.
	Record
)

// Command is one parsed binding command.
type Command struct {
	Kind    Kind
	Profile string   // SwitchProfile
	Keys    []string // SetLEDs: key names like "M2"
	Tokens  []Token  // Emit
	Argv    []string // Shell
}

const (
	prefixSwitchProfile = "switch-profile "
	prefixSetLEDs       = "set-leds "
	prefixEmit          = "emit "
	wordRecord          = "record"
)

// Parse turns a command string into its variant. Malformed emit tokens and
// unsplittable or empty shell lines are errors; the caller logs and drops
// the command.
func Parse(s string) (Command, error) {
	switch {
	case strings.HasPrefix(s, prefixSwitchProfile):
		return Command{Kind: SwitchProfile, Profile: s[len(prefixSwitchProfile):]}, nil
	case strings.HasPrefix(s, prefixSetLEDs):
		return Command{Kind: SetLEDs, Keys: strings.Split(s[len(prefixSetLEDs):], ",")}, nil
	case strings.HasPrefix(s, prefixEmit):
		tokens, err := ParseTokens(s[len(prefixEmit):])
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: Emit, Tokens: tokens}, nil
	case s == wordRecord:
		return Command{Kind: Record}, nil
	default:
		argv, err := shlex.Split(s)
		if err != nil {
			return Command{}, fmt.Errorf("split command line: %w", err)
		}
		if len(argv) == 0 {
			return Command{}, errors.New("empty command")
		}
		return Command{Kind: Shell, Argv: argv}, nil
	}
}
