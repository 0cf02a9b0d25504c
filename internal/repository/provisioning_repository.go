package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/models"
)

const uniqueViolationCode = "23505"

var savepointName = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// ProvisioningTx is one open provisioning transaction. Rows are isolated from
// each other with savepoints so a failed row can be undone without losing the rest.
type ProvisioningTx interface {
	ActiveCycle(ctx context.Context) (*models.SchoolCycle, error)
	FindGradeCycle(ctx context.Context, gradeName, cycleID string) (*models.GradeCycle, error)
	Savepoint(ctx context.Context, name string) error
	RollbackTo(ctx context.Context, name string) error
	Release(ctx context.Context, name string) error
	CreateUser(ctx context.Context, user *models.User) error
	CreateStudent(ctx context.Context, student *models.Student) error
	CreateTeacher(ctx context.Context, teacher *models.Teacher) error
	CreateDirector(ctx context.Context, director *models.Director) error
	CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error
	Commit() error
	Rollback() error
}

// ProvisioningRepository opens provisioning transactions over the account tables.
type ProvisioningRepository struct {
	db          *sqlx.DB
	users       *UserRepository
	students    *StudentRepository
	teachers    *TeacherRepository
	enrollments *EnrollmentRepository
	cycles      *CycleRepository
}

// NewProvisioningRepository constructs a ProvisioningRepository.
func NewProvisioningRepository(db *sqlx.DB) *ProvisioningRepository {
	return &ProvisioningRepository{
		db:          db,
		users:       NewUserRepository(db),
		students:    NewStudentRepository(db),
		teachers:    NewTeacherRepository(db),
		enrollments: NewEnrollmentRepository(db),
		cycles:      NewCycleRepository(db),
	}
}

// Begin opens a transaction for one provisioning batch.
func (r *ProvisioningRepository) Begin(ctx context.Context) (ProvisioningTx, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin provisioning tx: %w", err)
	}
	return &provisioningTx{repo: r, tx: tx}, nil
}

type provisioningTx struct {
	repo *ProvisioningRepository
	tx   *sqlx.Tx
}

func (p *provisioningTx) ActiveCycle(ctx context.Context) (*models.SchoolCycle, error) {
	return p.repo.cycles.FindActiveWithTx(ctx, p.tx)
}

func (p *provisioningTx) FindGradeCycle(ctx context.Context, gradeName, cycleID string) (*models.GradeCycle, error) {
	return p.repo.cycles.FindGradeCycleWithTx(ctx, p.tx, gradeName, cycleID)
}

func (p *provisioningTx) Savepoint(ctx context.Context, name string) error {
	return p.exec(ctx, "SAVEPOINT", name)
}

func (p *provisioningTx) RollbackTo(ctx context.Context, name string) error {
	return p.exec(ctx, "ROLLBACK TO SAVEPOINT", name)
}

func (p *provisioningTx) Release(ctx context.Context, name string) error {
	return p.exec(ctx, "RELEASE SAVEPOINT", name)
}

func (p *provisioningTx) exec(ctx context.Context, stmt, name string) error {
	// Savepoint names cannot be bound as parameters.
	if !savepointName.MatchString(name) {
		return fmt.Errorf("invalid savepoint name %q", name)
	}
	if _, err := p.tx.ExecContext(ctx, stmt+" "+name); err != nil {
		return fmt.Errorf("%s %s: %w", stmt, name, err)
	}
	return nil
}

func (p *provisioningTx) CreateUser(ctx context.Context, user *models.User) error {
	return p.repo.users.CreateWithTx(ctx, p.tx, user)
}

func (p *provisioningTx) CreateStudent(ctx context.Context, student *models.Student) error {
	return p.repo.students.CreateWithTx(ctx, p.tx, student)
}

func (p *provisioningTx) CreateTeacher(ctx context.Context, teacher *models.Teacher) error {
	return p.repo.teachers.CreateWithTx(ctx, p.tx, teacher)
}

func (p *provisioningTx) CreateDirector(ctx context.Context, director *models.Director) error {
	return p.repo.teachers.CreateDirectorWithTx(ctx, p.tx, director)
}

func (p *provisioningTx) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	return p.repo.enrollments.CreateWithTx(ctx, p.tx, enrollment)
}

func (p *provisioningTx) Commit() error {
	if err := p.tx.Commit(); err != nil {
		return fmt.Errorf("commit provisioning tx: %w", err)
	}
	return nil
}

func (p *provisioningTx) Rollback() error {
	return p.tx.Rollback()
}

// IsUniqueViolation reports whether err carries a PostgreSQL unique_violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode
}

// ViolatedConstraint returns the constraint name of a PostgreSQL error, if any.
func ViolatedConstraint(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}
