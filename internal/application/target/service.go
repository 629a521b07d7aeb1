package target

import (
	"context"
	"fmt"
	"time"

	"github.com/facevote-api/internal/domain"
	"github.com/facevote-api/internal/pkg/id"
)

type Service interface {
	Create(ctx context.Context, in domain.TargetInput) (*domain.Target, error)
	Get(ctx context.Context, targetID string) (*domain.Target, error)
}

type targetStore interface {
	Create(ctx context.Context, t *domain.Target) error
	Get(ctx context.Context, targetID string) (*domain.Target, error)
}

type service struct {
	repo targetStore
}

func NewService(repo targetStore) Service {
	return &service{repo: repo}
}

func (s *service) Create(ctx context.Context, in domain.TargetInput) (*domain.Target, error) {
	if in.OpensAt != nil && in.ClosesAt != nil && !in.OpensAt.Before(*in.ClosesAt) {
		return nil, domain.Errorf(domain.CodeBadRequest, "opens_at must be before closes_at")
	}
	seen := make(map[string]struct{}, len(in.Questions))
	for _, q := range in.Questions {
		if _, dup := seen[q.QuestionID]; dup {
			return nil, domain.Errorf(domain.CodeBadRequest, fmt.Sprintf("duplicate question id %q", q.QuestionID))
		}
		seen[q.QuestionID] = struct{}{}
		if q.MaxSelections > len(q.Options) {
			return nil, domain.Errorf(domain.CodeBadRequest, fmt.Sprintf("question %q allows more selections than options", q.QuestionID))
		}
	}

	t := &domain.Target{
		TargetID:  in.TargetID,
		Kind:      in.Kind,
		Title:     in.Title,
		Questions: in.Questions,
		OpensAt:   in.OpensAt,
		ClosesAt:  in.ClosesAt,
		CreatedAt: time.Now().UTC(),
	}
	if t.TargetID == "" {
		t.TargetID = id.New()
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *service) Get(ctx context.Context, targetID string) (*domain.Target, error) {
	return s.repo.Get(ctx, targetID)
}
