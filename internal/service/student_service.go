package service

import (
	"context"

	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/repository"
)

// StudentService handles student account business logic.
type StudentService struct {
	repo *repository.StudentRepository
	auth *AuthService
}

// NewStudentService creates a new StudentService.
func NewStudentService(repo *repository.StudentRepository, auth *AuthService) *StudentService {
	return &StudentService{repo: repo, auth: auth}
}

func (s *StudentService) GetByID(ctx context.Context, id int) (*model.Student, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *StudentService) GetByRegNumber(ctx context.Context, regNumber string) (*model.Student, error) {
	return s.repo.GetByRegNumber(ctx, regNumber)
}

func (s *StudentService) List(ctx context.Context, page, perPage int) ([]model.Student, int, error) {
	return s.repo.ListPaginated(ctx, perPage, (page-1)*perPage)
}

// Create registers a new student account with a bcrypt-hashed password.
func (s *StudentService) Create(ctx context.Context, req *model.CreateStudentRequest) (*model.Student, error) {
	hash, err := s.auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	student := &model.Student{
		Name:         req.Name,
		RegNumber:    req.RegNumber,
		Email:        req.Email,
		PasswordHash: hash,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, err
	}
	return student, nil
}
