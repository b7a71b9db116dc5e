// Package oracle defines the question/answer collaborator the engine resolves
// markets against. The engine treats the oracle as authoritative and final;
// disputes and slashing live outside this system.
package oracle

import (
	"context"
	"time"
)

// Answer is the finalized record for a question. An empty Answerer means the
// question has not been answered yet.
type Answer struct {
	Answerer string
	Bool     bool
	Numeric  int64
	At       time.Time
}

// Answered reports whether someone has finalized this answer.
func (a Answer) Answered() bool {
	return a.Answerer != ""
}

// Oracle accepts yes/no questions and later serves finalized answers.
type Oracle interface {
	// AskQuestion registers a question and returns an opaque question
	// identifier. The asking fee is settled by the caller through the value
	// ledger before this call.
	AskQuestion(ctx context.Context, text string, deadline time.Time) (string, error)

	// GetAnswer returns the answer record for a question. Unanswered
	// questions return an Answer with an empty Answerer, not an error.
	GetAnswer(ctx context.Context, questionID string) (Answer, error)
}
