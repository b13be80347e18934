package model

import "time"

// Student represents a student account.
type Student struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	RegNumber    string    `json:"reg_number"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// StudentLoginRequest is the payload for a student login.
type StudentLoginRequest struct {
	RegNumber string `json:"reg_number" binding:"required,min=3,max=30"`
	Password  string `json:"password" binding:"required,min=6"`
}

// CreateStudentRequest is the payload for registering a student.
type CreateStudentRequest struct {
	Name      string `json:"name" binding:"required,min=2,max=100"`
	RegNumber string `json:"reg_number" binding:"required,min=3,max=30"`
	Email     string `json:"email" binding:"omitempty,email"`
	Password  string `json:"password" binding:"required,min=6,max=72"`
}
