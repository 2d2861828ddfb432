package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"selfquiz/internal/errors"
	"selfquiz/internal/ledger"
	"selfquiz/internal/store"
)

func makeService(t *testing.T) *ledger.Service {
	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(context.Background()).Err(), "should be able to ping redis")

	return ledger.NewService(ledger.Config{
		Store: store.NewRedisStore(rc, "test"),
		Now:   func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
}

func logRequest(questionID int, packID string) ledger.LogRequest {
	return ledger.LogRequest{
		QuestionID:    questionID,
		Question:      "What is 2+2?",
		Options:       []string{"1", "2", "3", "4"},
		CorrectAnswer: 3,
		UserAnswer:    1,
		Topic:         "Arithmetic",
		PackID:        packID,
		PackName:      "Math Basics",
	}
}

func TestService_LogWrongAnswerUpsertsByIdentity(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	first, err := s.LogWrongAnswer(ctx, logRequest(0, "custom_1"))
	require.NoError(t, err)
	require.Equal(t, 1, first.AttemptCount)

	req := logRequest(0, "custom_1")
	req.UserAnswer = 2
	second, err := s.LogWrongAnswer(ctx, req)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID, "repeated miss must hit the same record")
	require.Equal(t, 2, second.AttemptCount)
	require.Equal(t, 2, second.UserAnswer, "user answer should be refreshed")

	records, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1, "upsert must not create a duplicate")
}

func TestService_DifferentIdentityCreatesNewRecords(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	_, err := s.LogWrongAnswer(ctx, logRequest(0, "custom_1"))
	require.NoError(t, err)
	_, err = s.LogWrongAnswer(ctx, logRequest(1, "custom_1"))
	require.NoError(t, err)
	_, err = s.LogWrongAnswer(ctx, logRequest(0, "custom_2"))
	require.NoError(t, err)

	records, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
}

func TestService_ClearMatching(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	_, err := s.LogWrongAnswer(ctx, logRequest(0, "custom_1"))
	require.NoError(t, err)

	removed, err := s.ClearMatching(ctx, "What is 2+2?", "custom_1")
	require.NoError(t, err)
	require.True(t, removed)

	records, err := s.All(ctx)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestService_ClearMatchingNothingIsIdempotent(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	_, err := s.LogWrongAnswer(ctx, logRequest(0, "custom_1"))
	require.NoError(t, err)

	before, err := s.All(ctx)
	require.NoError(t, err)

	removed, err := s.ClearMatching(ctx, "unrelated question", "custom_1")
	require.NoError(t, err)
	require.False(t, removed)

	after, err := s.All(ctx)
	require.NoError(t, err)
	require.Equal(t, before, after, "ledger must be unchanged when nothing matches")
}

func TestService_ClearByRecordID(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	r, err := s.LogWrongAnswer(ctx, logRequest(0, "custom_1"))
	require.NoError(t, err)

	require.NoError(t, s.ClearByRecordID(ctx, r.ID))

	err = s.ClearByRecordID(ctx, r.ID)
	require.Equal(t, errors.CodeNotFound, errors.Convert(err).Code)
}

func TestService_ByPackAndClearByPack(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	_, err := s.LogWrongAnswer(ctx, logRequest(0, "custom_1"))
	require.NoError(t, err)
	_, err = s.LogWrongAnswer(ctx, logRequest(1, "custom_1"))
	require.NoError(t, err)
	_, err = s.LogWrongAnswer(ctx, logRequest(0, "custom_2"))
	require.NoError(t, err)

	records, err := s.ByPack(ctx, "custom_1")
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.NoError(t, s.ClearByPack(ctx, "custom_1"))

	records, err = s.ByPack(ctx, "custom_1")
	require.NoError(t, err)
	require.Empty(t, records)

	records, err = s.ByPack(ctx, "custom_2")
	require.NoError(t, err)
	require.Len(t, records, 1, "other packs must be untouched")
}

func TestService_Stats(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	empty, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, empty.TotalWrongAnswers)
	require.Equal(t, 0, empty.UniquePacks)
	require.Empty(t, empty.TopicBreakdown)

	reqs := []ledger.LogRequest{
		logRequest(0, "custom_1"),
		logRequest(1, "custom_1"),
		logRequest(0, "custom_2"),
	}
	reqs[1].Topic = "Geometry"
	for _, req := range reqs {
		_, err := s.LogWrongAnswer(ctx, req)
		require.NoError(t, err)
	}

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalWrongAnswers)
	require.Equal(t, 2, stats.UniquePacks)
	require.Equal(t, map[string]int{"Arithmetic": 2, "Geometry": 1}, stats.TopicBreakdown)
	require.Equal(t, 2, stats.PackBreakdown["custom_1"].Count)
	require.Equal(t, "Math Basics", stats.PackBreakdown["custom_1"].PackName)
}

func TestService_DefaultsTopicAndPackName(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	req := logRequest(0, "custom_1")
	req.Topic = ""
	req.PackName = ""

	r, err := s.LogWrongAnswer(ctx, req)
	require.NoError(t, err)
	require.Equal(t, "General", r.Topic)
	require.Equal(t, "Unknown Pack", r.PackName)
}
