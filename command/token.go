package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TokenKind discriminates emit tokens.
type TokenKind int

const (
	// KeyToken is a keyboard press or release: "k+30" / "k-30".
	KeyToken TokenKind = iota
	// ButtonToken is a mouse button press or release: "m+1" / "m-1".
	ButtonToken
	// SleepToken is an inline pause in milliseconds: "s250".
	SleepToken
)

// Token is one element of an emit sequence.
type Token struct {
	Kind  TokenKind
	Press bool
	Code  int
	Pause time.Duration // SleepToken only
}

// ParseToken parses a single emit token: {k|m}{+|-}<code> or s<ms>.
func ParseToken(s string) (Token, error) {
	if len(s) < 2 {
		return Token{}, fmt.Errorf("invalid emit token %q", s)
	}
	if s[0] == 's' {
		ms, err := strconv.Atoi(s[1:])
		if err != nil || ms < 0 {
			return Token{}, fmt.Errorf("invalid pause token %q", s)
		}
		return Token{Kind: SleepToken, Pause: time.Duration(ms) * time.Millisecond}, nil
	}

	var kind TokenKind
	switch s[0] {
	case 'k':
		kind = KeyToken
	case 'm':
		kind = ButtonToken
	default:
		return Token{}, fmt.Errorf("invalid emit token %q", s)
	}
	if s[1] != '+' && s[1] != '-' {
		return Token{}, fmt.Errorf("invalid emit token %q", s)
	}
	code, err := strconv.Atoi(s[2:])
	if err != nil || code < 0 {
		return Token{}, fmt.Errorf("invalid emit token %q", s)
	}
	return Token{Kind: kind, Press: s[1] == '+', Code: code}, nil
}

// ParseTokens parses a comma-separated emit token list.
func ParseTokens(csv string) ([]Token, error) {
	parts := strings.Split(csv, ",")
	tokens := make([]Token, 0, len(parts))
	for _, p := range parts {
		t, err := ParseToken(p)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

func (t Token) String() string {
	if t.Kind == SleepToken {
		return "s" + strconv.Itoa(int(t.Pause/time.Millisecond))
	}
	prefix := byte('k')
	if t.Kind == ButtonToken {
		prefix = 'm'
	}
	sign := byte('-')
	if t.Press {
		sign = '+'
	}
	return string([]byte{prefix, sign}) + strconv.Itoa(t.Code)
}

// FormatTokens renders a token list back into the comma-separated form used
// inside an "emit" command.
func FormatTokens(tokens []Token) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = t.String()
	}
	return strings.Join(parts, ",")
}
