package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/models"
)

// EnrollmentRepository manages enrollment persistence.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository returns a new repository instance.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// CreateWithTx inserts an enrollment inside tx.
func (r *EnrollmentRepository) CreateWithTx(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	enrollment.CreatedAt = time.Now().UTC()

	const query = `INSERT INTO enrollments (id, student_id, grade_cycle_id, enrollment_date, status, created_at) VALUES (:id, :student_id, :grade_cycle_id, :enrollment_date, :status, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, tx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}
