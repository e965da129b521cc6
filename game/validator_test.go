package game

import (
	"math/rand"
	"testing"
)

func marksFor(positions ...int) []bool {
	m := make([]bool, CardSize)
	for _, p := range positions {
		m[p] = true
	}
	return m
}

func rowPositions(r int) []int {
	out := make([]int, Columns)
	for c := 0; c < Columns; c++ {
		out[c] = Position(r, c)
	}
	return out
}

func colPositions(c int) []int {
	out := make([]int, Columns)
	for r := 0; r < Columns; r++ {
		out[r] = Position(r, c)
	}
	return out
}

func TestPatternLabel(t *testing.T) {
	all := make([]int, CardSize)
	for i := range all {
		all[i] = i
	}

	tests := []struct {
		name   string
		marks  []bool
		modes  ModeSet
		want   string
		winner bool
	}{
		{name: "row wins horizontal", marks: marksFor(rowPositions(0)...), modes: ModeSet{Horizontal}, want: "Linha Horizontal 1", winner: true},
		{name: "row loses vertical", marks: marksFor(rowPositions(0)...), modes: ModeSet{Vertical}, winner: false},
		{name: "middle row uses free cell", marks: marksFor(2, 7, 17, 22), modes: ModeSet{Horizontal}, want: "Linha Horizontal 3", winner: true},
		{name: "column wins vertical", marks: marksFor(colPositions(3)...), modes: ModeSet{Vertical}, want: "Linha Vertical G", winner: true},
		{name: "main diagonal", marks: marksFor(0, 6, 18, 24), modes: ModeSet{Diagonal}, want: "Diagonal Principal", winner: true},
		{name: "anti diagonal", marks: marksFor(20, 16, 8, 4), modes: ModeSet{Diagonal}, want: "Diagonal Secundária", winner: true},
		{name: "full card blackout", marks: marksFor(all...), modes: ModeSet{Blackout}, want: "Cartela Cheia", winner: true},
		{name: "one short of blackout", marks: marksFor(all[1:]...), modes: ModeSet{Blackout}, winner: false},
		{name: "or semantics", marks: marksFor(colPositions(0)...), modes: ModeSet{Horizontal, Vertical}, want: "Linha Vertical B", winner: true},
		{name: "horizontal before vertical", marks: marksFor(append(rowPositions(4), colPositions(1)...)...), modes: ModeSet{Vertical, Horizontal}, want: "Linha Horizontal 5", winner: true},
		{name: "blackout first", marks: marksFor(all...), modes: ModeSet{Horizontal, Blackout}, want: "Cartela Cheia", winner: true},
		{name: "nothing marked", marks: NewMarks(), modes: ModeSet{Horizontal, Vertical, Diagonal}, winner: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PatternLabel(tt.marks, tt.modes)
			if ok != tt.winner || got != tt.want {
				t.Fatalf("PatternLabel() = %q, %v, want %q, %v", got, ok, tt.want, tt.winner)
			}
			if IsWinner(tt.marks, tt.modes) != tt.winner {
				t.Fatalf("IsWinner() disagrees with PatternLabel()")
			}
		})
	}
}

func TestPatternLabelDoesNotMutateInput(t *testing.T) {
	marks := make([]bool, CardSize)
	PatternLabel(marks, ModeSet{Horizontal})
	if marks[FreeIndex] {
		t.Fatalf("PatternLabel() modified caller markings")
	}
}

func TestDeriveMarksIgnoresClientClaims(t *testing.T) {
	card := NewCard(rand.New(rand.NewSource(3)))
	row := card.Row(0)

	// all but the last number of row 0 drawn
	drawn := append([]int(nil), row[:4]...)
	marks := DeriveMarks(card, drawn)
	if IsWinner(marks, ModeSet{Horizontal}) {
		t.Fatalf("derived markings won without the fifth number")
	}

	marks = DeriveMarks(card, append(drawn, row[4]))
	label, ok := PatternLabel(marks, ModeSet{Horizontal})
	if !ok || label != "Linha Horizontal 1" {
		t.Fatalf("PatternLabel() = %q, %v", label, ok)
	}
	if !marks[FreeIndex] {
		t.Fatalf("free cell not marked")
	}
}
