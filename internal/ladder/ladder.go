// Package ladder defines the prize ladder: the fixed mapping from question
// index to cumulative prize, with safe checkpoints where the score floor
// locks in.
package ladder

import "fmt"

// Rung is one step of the prize ladder.
type Rung struct {
	Index int
	Prize int64
	Safe  bool
}

// Ladder is a fixed, ordered prize ladder over question indices 1..Len().
// It is read-only configuration shared by all sessions.
type Ladder struct {
	rungs []Rung
}

// New builds a Ladder from rungs. Rungs must cover indices 1..n contiguously
// with non-decreasing prizes.
func New(rungs []Rung) (*Ladder, error) {
	if len(rungs) == 0 {
		return nil, fmt.Errorf("ladder must have at least one rung")
	}
	var prev int64
	for i, r := range rungs {
		if r.Index != i+1 {
			return nil, fmt.Errorf("ladder rung %d has index %d, want %d", i, r.Index, i+1)
		}
		if r.Prize < prev {
			return nil, fmt.Errorf("ladder prize decreases at index %d", r.Index)
		}
		prev = r.Prize
	}
	out := make([]Rung, len(rungs))
	copy(out, rungs)
	return &Ladder{rungs: out}, nil
}

// Default returns the reference 15-question ladder (amounts in NGN).
// Safe checkpoints sit at questions 5 and 10.
func Default() *Ladder {
	l, err := New([]Rung{
		{Index: 1, Prize: 100},
		{Index: 2, Prize: 200},
		{Index: 3, Prize: 300},
		{Index: 4, Prize: 500},
		{Index: 5, Prize: 1_000, Safe: true},
		{Index: 6, Prize: 2_000},
		{Index: 7, Prize: 3_000},
		{Index: 8, Prize: 5_000},
		{Index: 9, Prize: 7_500},
		{Index: 10, Prize: 10_000, Safe: true},
		{Index: 11, Prize: 15_000},
		{Index: 12, Prize: 25_000},
		{Index: 13, Prize: 30_000},
		{Index: 14, Prize: 40_000},
		{Index: 15, Prize: 50_000},
	})
	if err != nil {
		panic(err)
	}
	return l
}

// Len returns the number of questions on the ladder.
func (l *Ladder) Len() int {
	return len(l.rungs)
}

// Prize returns the cumulative prize for answering the question at index
// correctly. Index 0 (no questions answered) is worth 0.
func (l *Ladder) Prize(index int) int64 {
	if index <= 0 || index > len(l.rungs) {
		return 0
	}
	return l.rungs[index-1].Prize
}

// IsSafe reports whether index is a safe checkpoint.
func (l *Ladder) IsSafe(index int) bool {
	if index <= 0 || index > len(l.rungs) {
		return false
	}
	return l.rungs[index-1].Safe
}

// FloorAt returns the safe-floor prize for a session whose highest correctly
// answered index is index: the prize of the highest safe checkpoint at or
// below it, or 0 if none was reached.
func (l *Ladder) FloorAt(index int) int64 {
	var floor int64
	for i := 1; i <= index && i <= len(l.rungs); i++ {
		if l.rungs[i-1].Safe {
			floor = l.rungs[i-1].Prize
		}
	}
	return floor
}

// TopPrize returns the maximum win.
func (l *Ladder) TopPrize() int64 {
	return l.rungs[len(l.rungs)-1].Prize
}
