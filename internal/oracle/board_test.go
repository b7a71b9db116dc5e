package oracle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictd/internal/domain"
)

func TestBoard_AskAndAnswer(t *testing.T) {
	ctx := context.Background()
	b := NewBoard("reporter")

	id, err := b.AskQuestion(ctx, "will it rain tomorrow?", time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	ans, err := b.GetAnswer(ctx, id)
	require.NoError(t, err)
	assert.False(t, ans.Answered())

	require.NoError(t, b.Submit("reporter", id, true, 0))

	ans, err = b.GetAnswer(ctx, id)
	require.NoError(t, err)
	assert.True(t, ans.Answered())
	assert.Equal(t, "reporter", ans.Answerer)
	assert.True(t, ans.Bool)
}

func TestBoard_EmptyQuestion(t *testing.T) {
	b := NewBoard("reporter")
	_, err := b.AskQuestion(context.Background(), "", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrEmptyQuestion)
}

func TestBoard_SubmitAuthorization(t *testing.T) {
	b := NewBoard("reporter")
	id, err := b.AskQuestion(context.Background(), "q", time.Now().Add(time.Hour))
	require.NoError(t, err)

	assert.ErrorIs(t, b.Submit("stranger", id, true, 0), domain.ErrUnauthorized)
}

func TestBoard_AnswerIsFinal(t *testing.T) {
	b := NewBoard("reporter")
	id, err := b.AskQuestion(context.Background(), "q", time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, b.Submit("reporter", id, false, 1))
	assert.ErrorIs(t, b.Submit("reporter", id, true, 0), domain.ErrAlreadyResolved)
}

func TestBoard_UnknownQuestion(t *testing.T) {
	b := NewBoard("reporter")
	_, err := b.GetAnswer(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
