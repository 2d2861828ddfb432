// Package store provides the persistent key-value layer. Every durable
// collection (packs, history, wrong answers, theme) is one serialized blob
// under a fixed key, owned by exactly one service.
package store

import (
	"context"
	"encoding/json"
	"log/slog"

	"selfquiz/internal/errors"
)

// Keys of the logical collections.
const (
	KeyPacks        = "question_packs"
	KeyWrongAnswers = "wrong_answers"
	KeyHistory      = "quiz_history"
	KeyAchievements = "achievements"
	KeyTheme        = "theme"

	// Transient handoff blobs between independently loaded pages.
	KeySessionConfig = "current_session_config"
	KeySessionResult = "current_session_result"
)

// Store is a durable string key-value store.
type Store interface {
	// Get returns the raw blob under key, or ok=false when absent.
	Get(ctx context.Context, key string) (raw string, ok bool, err error)
	Set(ctx context.Context, key, raw string) error
	Remove(ctx context.Context, key string) error
}

// Load unmarshals the blob under key into out. An absent key leaves out at its
// zero value. A blob that fails to parse is logged and discarded, and out is
// reset to zero: corrupted state must never propagate past this boundary.
func Load[T any](ctx context.Context, s Store, key string, out *T) error {
	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		return errors.Internal(err)
	}
	if !ok {
		return nil
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		slog.WarnContext(ctx, "store: discarding corrupted blob",
			"key", key,
			"error", err,
		)
		var zero T
		*out = zero
	}

	return nil
}

// Save marshals v and writes it under key.
func Save[T any](ctx context.Context, s Store, key string, v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Internal(err)
	}

	if err := s.Set(ctx, key, string(b)); err != nil {
		return errors.Internal(err)
	}

	return nil
}
