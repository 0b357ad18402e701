package model

import (
	"time"

	"github.com/google/uuid"
)

// UserRole separates candidates from exam administrators.
type UserRole string

const (
	RoleCandidate UserRole = "candidate"
	RoleAdmin     UserRole = "admin"
)

// User is an account that can hold attempts (candidate) or oversee exams
// (admin).
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
