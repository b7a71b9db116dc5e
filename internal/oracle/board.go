package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/predictd/internal/domain"
)

// Board is an in-process Oracle. Questions are answered by a single reporter
// identity configured at construction time; anything fancier (bonded
// reporters, disputes) belongs to an external oracle behind the same
// interface.
type Board struct {
	reporter string

	mu        sync.Mutex
	questions map[string]*question
}

type question struct {
	text     string
	deadline time.Time
	answer   Answer
}

// NewBoard creates a Board whose answers are attributed to reporter.
func NewBoard(reporter string) *Board {
	return &Board{
		reporter:  reporter,
		questions: make(map[string]*question),
	}
}

// AskQuestion implements Oracle.
func (b *Board) AskQuestion(_ context.Context, text string, deadline time.Time) (string, error) {
	if text == "" {
		return "", domain.ErrEmptyQuestion
	}

	id := uuid.New().String()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.questions[id] = &question{text: text, deadline: deadline}
	return id, nil
}

// GetAnswer implements Oracle.
func (b *Board) GetAnswer(_ context.Context, questionID string) (Answer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.questions[questionID]
	if !ok {
		return Answer{}, fmt.Errorf("oracle: question %s: %w", questionID, domain.ErrNotFound)
	}
	return q.answer, nil
}

// Submit finalizes the answer for a question. Only the board's reporter may
// answer, and an answer is final: re-answering is rejected.
func (b *Board) Submit(caller, questionID string, boolAnswer bool, numericAnswer int64) error {
	if caller != b.reporter {
		return domain.ErrUnauthorized
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.questions[questionID]
	if !ok {
		return fmt.Errorf("oracle: question %s: %w", questionID, domain.ErrNotFound)
	}
	if q.answer.Answered() {
		return fmt.Errorf("oracle: question %s: %w", questionID, domain.ErrAlreadyResolved)
	}

	q.answer = Answer{
		Answerer: caller,
		Bool:     boolAnswer,
		Numeric:  numericAnswer,
		At:       time.Now().UTC(),
	}
	return nil
}
