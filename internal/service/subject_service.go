package service

import (
	"context"

	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/repository"
)

// SubjectService handles subject business logic.
type SubjectService struct {
	repo *repository.SubjectRepository
}

// NewSubjectService creates a new SubjectService.
func NewSubjectService(repo *repository.SubjectRepository) *SubjectService {
	return &SubjectService{repo: repo}
}

func (s *SubjectService) List(ctx context.Context) ([]model.Subject, error) {
	return s.repo.List(ctx)
}

func (s *SubjectService) GetByID(ctx context.Context, id int) (*model.Subject, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *SubjectService) Create(ctx context.Context, sub *model.Subject) error {
	return s.repo.Create(ctx, sub)
}

func (s *SubjectService) Update(ctx context.Context, sub *model.Subject) error {
	return s.repo.Update(ctx, sub)
}

func (s *SubjectService) Delete(ctx context.Context, id int) error {
	return s.repo.Delete(ctx, id)
}
