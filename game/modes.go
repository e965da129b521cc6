package game

import (
	"errors"
	"fmt"
	"strings"
)

type Mode string

const (
	Horizontal Mode = "horizontal"
	Vertical   Mode = "vertical"
	Diagonal   Mode = "diagonal"
	Blackout   Mode = "blackout"
)

var (
	ErrNoModes           = errors.New("at least one mode is required")
	ErrUnknownMode       = errors.New("unknown mode")
	ErrBlackoutExclusive = errors.New("blackout cannot be combined with other modes")
)

// ModeSet is the set of win conditions active for a session.
type ModeSet []Mode

// ParseModes reads a comma separated tag list such as "horizontal,vertical".
// The result is normalized but not validated.
func ParseModes(s string) ModeSet {
	var out ModeSet
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, Mode(part))
		}
	}
	return out.Normalize()
}

// Normalize lowercases tags and drops repeats, keeping first-seen order.
func (m ModeSet) Normalize() ModeSet {
	out := make(ModeSet, 0, len(m))
	seen := make(map[Mode]bool, len(m))
	for _, mode := range m {
		mode = Mode(strings.ToLower(strings.TrimSpace(string(mode))))
		if mode == "" || seen[mode] {
			continue
		}
		seen[mode] = true
		out = append(out, mode)
	}
	return out
}

// Validate enforces the tag-set contract: non-empty, known tags only, and
// blackout never alongside another tag. The validator itself does not care.
func (m ModeSet) Validate() error {
	if len(m) == 0 {
		return ErrNoModes
	}
	for _, mode := range m {
		switch mode {
		case Horizontal, Vertical, Diagonal, Blackout:
		default:
			return fmt.Errorf("%w: %q", ErrUnknownMode, string(mode))
		}
	}
	if m.Has(Blackout) && len(m) > 1 {
		return ErrBlackoutExclusive
	}
	return nil
}

func (m ModeSet) Has(mode Mode) bool {
	for _, v := range m {
		if v == mode {
			return true
		}
	}
	return false
}

func (m ModeSet) String() string {
	parts := make([]string, len(m))
	for i, mode := range m {
		parts[i] = string(mode)
	}
	return strings.Join(parts, ",")
}
