package pack

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"selfquiz/internal/domain"
	"selfquiz/internal/errors"
	"selfquiz/internal/store"
)

type Config struct {
	Store store.Store

	// Now overrides the clock, for tests.
	Now func() time.Time
}

type Service struct {
	store store.Store
	now   func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store: c.Store,
		now:   c.Now,
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// UploadRequest carries a raw question file as uploaded by the user.
type UploadRequest struct {
	Name        string
	Description string
	// Raw is the file content: a JSON array of questions.
	Raw []byte
}

// Upload validates the raw question file and persists it as a new pack.
// Validation aborts on the first violation with an index-qualified error and
// nothing is persisted.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*domain.Pack, error) {
	var questions []domain.Question
	if err := json.Unmarshal(req.Raw, &questions); err != nil {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("file must be a JSON array of questions"),
			errors.WithCause(err),
		)
	}

	if err := validateQuestions(questions); err != nil {
		return nil, err
	}

	if req.Name == "" {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("pack name must not be empty"))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate pack ID: %w", err)
	}

	p := domain.Pack{
		ID:          "custom_" + id.String(),
		Name:        req.Name,
		Description: req.Description,
		Questions:   questions,
		UploadedAt:  s.now(),
	}

	packs, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	packs = append(packs, p)
	if err := store.Save(ctx, s.store, store.KeyPacks, packs); err != nil {
		return nil, err
	}

	return &p, nil
}

func validateQuestions(questions []domain.Question) error {
	if len(questions) == 0 {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("question file is empty"))
	}

	for i, q := range questions {
		switch {
		case q.Question == "":
			return errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("question %d: missing question text", i))
		case len(q.Options) != 4:
			return errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("question %d: must have exactly 4 options, got %d", i, len(q.Options)))
		case q.CorrectAnswer < 0 || q.CorrectAnswer > 3:
			return errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("question %d: correctAnswer must be 0-3, got %d", i, q.CorrectAnswer))
		case q.Topic == "":
			return errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("question %d: missing topic", i))
		}
	}

	return nil
}

// List returns all packs in upload order.
func (s *Service) List(ctx context.Context) ([]domain.Pack, error) {
	return s.load(ctx)
}

// FindByID returns the pack with the given id.
func (s *Service) FindByID(ctx context.Context, id string) (*domain.Pack, error) {
	packs, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	for i := range packs {
		if packs[i].ID == id {
			return &packs[i], nil
		}
	}

	return nil, errors.New(errors.CodeNotFound,
		errors.WithMessagef("pack not found: %s", id))
}

type UpdateRequest struct {
	ID          string
	Name        string
	Description string
}

// Update renames a pack. Questions are immutable.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*domain.Pack, error) {
	packs, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	for i := range packs {
		if packs[i].ID != req.ID {
			continue
		}

		if req.Name != "" {
			packs[i].Name = req.Name
		}
		packs[i].Description = req.Description

		if err := store.Save(ctx, s.store, store.KeyPacks, packs); err != nil {
			return nil, err
		}

		return &packs[i], nil
	}

	return nil, errors.New(errors.CodeNotFound,
		errors.WithMessagef("pack not found: %s", req.ID))
}

// Remove deletes a pack.
func (s *Service) Remove(ctx context.Context, id string) error {
	packs, err := s.load(ctx)
	if err != nil {
		return err
	}

	kept := packs[:0]
	for _, p := range packs {
		if p.ID != id {
			kept = append(kept, p)
		}
	}

	if len(kept) == len(packs) {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("pack not found: %s", id))
	}

	return store.Save(ctx, s.store, store.KeyPacks, kept)
}

func (s *Service) load(ctx context.Context) ([]domain.Pack, error) {
	var packs []domain.Pack
	if err := store.Load(ctx, s.store, store.KeyPacks, &packs); err != nil {
		return nil, err
	}

	return packs, nil
}
