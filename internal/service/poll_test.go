package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/blogpost/internal/model"
)

func prevPoll() *model.Poll {
	return &model.Poll{
		PostID:   "p1",
		Question: "Best?",
		Options: []model.PollOption{
			{ID: "opt-a", Text: "A", Votes: 3},
			{ID: "opt-b", Text: "B", Votes: 1},
		},
	}
}

func texts(opts ...string) []PollOptionInput {
	out := make([]PollOptionInput, len(opts))
	for i, o := range opts {
		out[i] = PollOptionInput{Text: o}
	}
	return out
}

func TestReconcilePoll_CarriesVotesByText(t *testing.T) {
	got := ReconcilePoll(prevPoll(), &PollSubmission{Question: "Best?", Options: texts("A", "C")}, false)
	require.NotNil(t, got)
	require.Len(t, got.Options, 2)

	assert.Equal(t, "A", got.Options[0].Text)
	assert.Equal(t, int64(3), got.Options[0].Votes)
	assert.Equal(t, "opt-a", got.Options[0].ID)
	assert.Equal(t, "C", got.Options[1].Text)
	assert.Equal(t, int64(0), got.Options[1].Votes)
	assert.NotEmpty(t, got.Options[1].ID)
	assert.NotEqual(t, "opt-b", got.Options[1].ID)
	assert.Equal(t, "p1", got.PostID)
}

func TestReconcilePoll_RenameKeepsVotesByID(t *testing.T) {
	sub := &PollSubmission{Question: "Best?", Options: []PollOptionInput{
		{ID: "opt-b", Text: "B, reworded"},
		{ID: "opt-a", Text: "A"},
	}}
	got := ReconcilePoll(prevPoll(), sub, false)

	require.Len(t, got.Options, 2)
	assert.Equal(t, "opt-b", got.Options[0].ID)
	assert.Equal(t, int64(1), got.Options[0].Votes)
	assert.Equal(t, 0, got.Options[0].Position)
	assert.Equal(t, "opt-a", got.Options[1].ID)
	assert.Equal(t, int64(3), got.Options[1].Votes)
	assert.Equal(t, 1, got.Options[1].Position)
}

func TestReconcilePoll_UnknownIDStartsFresh(t *testing.T) {
	sub := &PollSubmission{Question: "Q", Options: []PollOptionInput{{ID: "forged", Text: "A"}}}
	got := ReconcilePoll(prevPoll(), sub, false)

	assert.NotEqual(t, "forged", got.Options[0].ID)
	assert.Equal(t, int64(0), got.Options[0].Votes)
}

func TestReconcilePoll_DuplicateTextClaimsOnce(t *testing.T) {
	got := ReconcilePoll(prevPoll(), &PollSubmission{Question: "Q", Options: texts("A", "A")}, false)

	require.Len(t, got.Options, 2)
	assert.Equal(t, int64(3), got.Options[0].Votes)
	assert.Equal(t, int64(0), got.Options[1].Votes)
	assert.NotEqual(t, got.Options[0].ID, got.Options[1].ID)
}

func TestReconcilePoll_NotSubmittedKeepsPrevious(t *testing.T) {
	prev := prevPoll()
	got := ReconcilePoll(prev, nil, false)
	assert.Same(t, prev, got)
}

func TestReconcilePoll_BlankOptionsRemovePoll(t *testing.T) {
	got := ReconcilePoll(prevPoll(), &PollSubmission{Question: "Q", Options: texts("", "  ")}, false)
	assert.Nil(t, got)
}

func TestReconcilePoll_Question(t *testing.T) {
	got := ReconcilePoll(nil, &PollSubmission{Options: texts(" yes ", "", "no")}, true)
	assert.Equal(t, model.DefaultPollQuestion, got.Question)
	require.Len(t, got.Options, 2)
	assert.Equal(t, "yes", got.Options[0].Text)
	assert.Equal(t, "no", got.Options[1].Text)

	prev := prevPoll()
	got = ReconcilePoll(prev, &PollSubmission{Question: " ", Options: texts("A", "B")}, false)
	assert.Same(t, prev, got)

	got = ReconcilePoll(prev, &PollSubmission{Question: "", Options: texts("")}, false)
	assert.Same(t, prev, got)
}
