package models

import "time"

// UserRole represents the account roles known to the portal.
type UserRole string

const (
	RoleStudent  UserRole = "student"
	RoleTeacher  UserRole = "teacher"
	RoleDirector UserRole = "director"
)

// ParseUserRole folds raw to a known role, reporting false when it names none.
func ParseUserRole(raw string) (UserRole, bool) {
	switch role := UserRole(raw); role {
	case RoleStudent, RoleTeacher, RoleDirector:
		return role, true
	default:
		return "", false
	}
}

// User represents an account stored in the users table.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         UserRole  `db:"role" json:"role"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
