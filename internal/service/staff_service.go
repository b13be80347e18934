package service

import (
	"context"

	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/repository"
)

// StaffService handles staff account business logic.
type StaffService struct {
	repo *repository.StaffRepository
}

// NewStaffService creates a new StaffService.
func NewStaffService(repo *repository.StaffRepository) *StaffService {
	return &StaffService{repo: repo}
}

func (s *StaffService) GetByID(ctx context.Context, id int) (*model.Staff, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *StaffService) GetByEmail(ctx context.Context, email string) (*model.Staff, error) {
	return s.repo.GetByEmail(ctx, email)
}

func (s *StaffService) Create(ctx context.Context, staff *model.Staff) error {
	return s.repo.Create(ctx, staff)
}
