package game

import (
	"errors"
	"testing"
)

func TestParseModes(t *testing.T) {
	got := ParseModes(" Horizontal, vertical,horizontal ,")
	if got.String() != "horizontal,vertical" {
		t.Fatalf("ParseModes() = %q", got.String())
	}
}

func TestModeSetValidate(t *testing.T) {
	tests := []struct {
		name  string
		modes ModeSet
		want  error
	}{
		{name: "single", modes: ModeSet{Horizontal}, want: nil},
		{name: "lines", modes: ModeSet{Horizontal, Vertical, Diagonal}, want: nil},
		{name: "blackout alone", modes: ModeSet{Blackout}, want: nil},
		{name: "empty", modes: nil, want: ErrNoModes},
		{name: "unknown", modes: ModeSet{"corners"}, want: ErrUnknownMode},
		{name: "blackout combined", modes: ModeSet{Blackout, Horizontal}, want: ErrBlackoutExclusive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.modes.Validate(); !errors.Is(err, tt.want) {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}
