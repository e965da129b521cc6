package game

import (
	"errors"
	"fmt"
	"math/rand"
)

const (
	CardSize  = 25
	Columns   = 5
	FreeIndex = 12 // center cell, row 2 / column 2
	FreeValue = 0
	MinNumber = 1
	MaxNumber = 75
	bandSize  = 15
)

// ColumnLetters names the five bands in column order.
var ColumnLetters = [Columns]string{"B", "I", "N", "G", "O"}

var (
	ErrCardSize      = errors.New("card must have 25 cells")
	ErrCardFreeCell  = errors.New("card center must be the free cell")
	ErrCardRange     = errors.New("card value outside its column band")
	ErrCardDuplicate = errors.New("card value repeated")
)

// Card is a 5x5 bingo card stored column-major: position = col*5 + row.
type Card []int

// Position returns the card index for a row/column pair.
func Position(row, col int) int { return col*Columns + row }

// Band returns the inclusive number range for a column.
func Band(col int) (lo, hi int) {
	lo = col*bandSize + 1
	return lo, lo + bandSize - 1
}

// NewCard builds a card by taking the first five values of a Fisher-Yates
// shuffle of each column band. A nil r uses the shared math/rand source.
func NewCard(r *rand.Rand) Card {
	card := make(Card, CardSize)
	band := make([]int, bandSize)
	for col := 0; col < Columns; col++ {
		lo, _ := Band(col)
		for i := range band {
			band[i] = lo + i
		}
		shuffle(r, band)
		copy(card[col*Columns:(col+1)*Columns], band[:Columns])
	}
	card[FreeIndex] = FreeValue
	return card
}

// Validate checks size, free cell, column bands and uniqueness.
func (c Card) Validate() error {
	if len(c) != CardSize {
		return ErrCardSize
	}
	if c[FreeIndex] != FreeValue {
		return ErrCardFreeCell
	}
	seen := make(map[int]bool, CardSize)
	for pos, n := range c {
		if pos == FreeIndex {
			continue
		}
		lo, hi := Band(pos / Columns)
		if n < lo || n > hi {
			return fmt.Errorf("%w: %d at position %d", ErrCardRange, n, pos)
		}
		if seen[n] {
			return fmt.Errorf("%w: %d", ErrCardDuplicate, n)
		}
		seen[n] = true
	}
	return nil
}

// Contains reports whether n is one of the card's drawable values.
func (c Card) Contains(n int) bool {
	for pos, v := range c {
		if pos != FreeIndex && v == n {
			return true
		}
	}
	return false
}

// Row returns the five values of row r, left to right.
func (c Card) Row(r int) []int {
	out := make([]int, Columns)
	for col := 0; col < Columns; col++ {
		out[col] = c[Position(r, col)]
	}
	return out
}

// NewMarks returns a zeroed marking vector with the free cell set.
func NewMarks() []bool {
	marks := make([]bool, CardSize)
	marks[FreeIndex] = true
	return marks
}

func shuffle(r *rand.Rand, s []int) {
	for i := len(s) - 1; i > 0; i-- {
		j := intn(r, i+1)
		s[i], s[j] = s[j], s[i]
	}
}

func intn(r *rand.Rand, n int) int {
	if r == nil {
		return rand.Intn(n)
	}
	return r.Intn(n)
}
