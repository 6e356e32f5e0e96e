package uci

import "time"

// remainingHalfmoves estimates how many more halfmoves the game is likely
// to last from the current ply, the denominator of the time-budget
// heuristic (§4.2 "Stopping").
func remainingHalfmoves(ply int) float64 {
	p := float64(ply)
	return 59.3 + (72830-2330*p)/(2644+p*(10+p))
}

// SearchBudget computes the per-move wall-clock budget from the clock
// reading remaining for the side to move, at the given ply
// (§4.2: budget = clock / remaining_halfmoves).
func SearchBudget(clock time.Duration, ply int) time.Duration {
	remaining := remainingHalfmoves(ply)
	if remaining < 1 {
		remaining = 1
	}
	return time.Duration(float64(clock) / remaining)
}
