package game

import (
	"math/rand"
	"testing"
)

func TestDrawNextExhaustsPool(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	var drawn []int
	seen := make(map[int]bool)

	for i := 0; i < MaxNumber; i++ {
		n, ok := DrawNext(r, drawn)
		if !ok {
			t.Fatalf("draw %d reported exhaustion early", i)
		}
		if n < MinNumber || n > MaxNumber {
			t.Fatalf("drew %d, out of range", n)
		}
		if seen[n] {
			t.Fatalf("drew %d twice", n)
		}
		seen[n] = true
		drawn = append(drawn, n)
	}

	if _, ok := DrawNext(r, drawn); ok {
		t.Fatalf("DrawNext() after 75 draws = ok, want exhaustion")
	}
	if got := Remaining(drawn); got != 0 {
		t.Fatalf("Remaining() = %d, want 0", got)
	}
}

func TestDrawNextLastNumber(t *testing.T) {
	drawn := make([]int, 0, MaxNumber-1)
	for n := MinNumber; n <= MaxNumber; n++ {
		if n != 33 {
			drawn = append(drawn, n)
		}
	}
	n, ok := DrawNext(nil, drawn)
	if !ok || n != 33 {
		t.Fatalf("DrawNext() = %d, %v, want 33, true", n, ok)
	}
}

func TestRemainingIgnoresRepeats(t *testing.T) {
	if got := Remaining([]int{1, 1, 2, 99}); got != 73 {
		t.Fatalf("Remaining() = %d, want 73", got)
	}
}
