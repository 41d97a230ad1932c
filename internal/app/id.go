package app

import "github.com/google/uuid"

// newRunID produces the identifier that correlates the log lines of one run.
// Isolated here so the ID strategy can evolve independently.
func newRunID() string {
	return uuid.NewString()
}
