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

// TeacherRepository handles persistence of teacher profiles.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// CodeExists reports whether a teacher already holds the personal code.
func (r *TeacherRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM teachers WHERE personal_code = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, strings.TrimSpace(code)); err != nil {
		return false, fmt.Errorf("check teacher code: %w", err)
	}
	return exists, nil
}

// CreateWithTx inserts a teacher profile inside tx.
func (r *TeacherRepository) CreateWithTx(ctx context.Context, tx *sqlx.Tx, teacher *models.Teacher) error {
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	teacher.CreatedAt = now
	teacher.UpdatedAt = now

	const query = `INSERT INTO teachers (id, user_id, personal_code, first_name, last_name, jornada, created_at, updated_at) VALUES (:id, :user_id, :personal_code, :first_name, :last_name, :jornada, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, tx, query, teacher); err != nil {
		return fmt.Errorf("create teacher: %w", err)
	}
	return nil
}

// CreateDirectorWithTx inserts a director profile inside tx.
func (r *TeacherRepository) CreateDirectorWithTx(ctx context.Context, tx *sqlx.Tx, director *models.Director) error {
	if director.ID == "" {
		director.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	director.CreatedAt = now
	director.UpdatedAt = now

	const query = `INSERT INTO directors (id, user_id, first_name, last_name, created_at, updated_at) VALUES (:id, :user_id, :first_name, :last_name, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, tx, query, director); err != nil {
		return fmt.Errorf("create director: %w", err)
	}
	return nil
}
