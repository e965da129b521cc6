package game

import "fmt"

var (
	mainDiagonal = [Columns]int{0, 6, 12, 18, 24}
	antiDiagonal = [Columns]int{20, 16, 12, 8, 4}
)

// DeriveMarks computes markings from the drawn numbers alone, ignoring
// anything a client reported.
func DeriveMarks(card Card, drawn []int) []bool {
	set := make(map[int]bool, len(drawn))
	for _, n := range drawn {
		set[n] = true
	}
	marks := make([]bool, CardSize)
	for pos, n := range card {
		if pos >= CardSize {
			break
		}
		marks[pos] = pos == FreeIndex || set[n]
	}
	return marks
}

// IsWinner reports whether any active mode is satisfied.
func IsWinner(marks []bool, modes ModeSet) bool {
	_, ok := PatternLabel(marks, modes)
	return ok
}

// PatternLabel names the winning pattern using the fixed priority
// blackout > horizontal > vertical > diagonal.
func PatternLabel(marks []bool, modes ModeSet) (string, bool) {
	m := withFreeCell(marks)

	if modes.Has(Blackout) && blackout(m) {
		return "Cartela Cheia", true
	}
	if modes.Has(Horizontal) {
		if row, ok := completeRow(m); ok {
			return fmt.Sprintf("Linha Horizontal %d", row+1), true
		}
	}
	if modes.Has(Vertical) {
		if col, ok := completeColumn(m); ok {
			return "Linha Vertical " + ColumnLetters[col], true
		}
	}
	if modes.Has(Diagonal) {
		if allMarked(m, mainDiagonal[:]) {
			return "Diagonal Principal", true
		}
		if allMarked(m, antiDiagonal[:]) {
			return "Diagonal Secundária", true
		}
	}
	return "", false
}

func withFreeCell(marks []bool) []bool {
	m := make([]bool, CardSize)
	copy(m, marks)
	m[FreeIndex] = true
	return m
}

func blackout(m []bool) bool {
	for _, v := range m {
		if !v {
			return false
		}
	}
	return true
}

func completeRow(m []bool) (int, bool) {
	for row := 0; row < Columns; row++ {
		full := true
		for col := 0; col < Columns && full; col++ {
			full = m[Position(row, col)]
		}
		if full {
			return row, true
		}
	}
	return 0, false
}

func completeColumn(m []bool) (int, bool) {
	for col := 0; col < Columns; col++ {
		full := true
		for row := 0; row < Columns && full; row++ {
			full = m[Position(row, col)]
		}
		if full {
			return col, true
		}
	}
	return 0, false
}

func allMarked(m []bool, positions []int) bool {
	for _, pos := range positions {
		if !m[pos] {
			return false
		}
	}
	return true
}
