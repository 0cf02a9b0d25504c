package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/models"
)

// StudentRepository handles persistence of student profiles.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// CodeExists reports whether a student already holds the personal code.
func (r *StudentRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM students WHERE personal_code = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, strings.TrimSpace(code)); err != nil {
		return false, fmt.Errorf("check student code: %w", err)
	}
	return exists, nil
}

// CreateWithTx inserts a student profile inside tx.
func (r *StudentRepository) CreateWithTx(ctx context.Context, tx *sqlx.Tx, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now

	const query = `INSERT INTO students (id, user_id, personal_code, first_name, last_name, plan, created_at, updated_at) VALUES (:id, :user_id, :personal_code, :first_name, :last_name, :plan, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, tx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}
