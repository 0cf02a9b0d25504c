package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/dto"
	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/models"
	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/repository"
	appErrors "github.com/jromanv/portal-liceo-tecpan-sub000/pkg/errors"
	"github.com/jromanv/portal-liceo-tecpan-sub000/pkg/logger"
)

type provisioningStore interface {
	Begin(ctx context.Context) (repository.ProvisioningTx, error)
}

type auditLogWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// ProvisioningActor identifies who submitted a batch.
type ProvisioningActor struct {
	UserID    string
	IP        string
	UserAgent string
}

// ProvisioningService materialises validated rows into accounts, role profiles and enrollments.
type ProvisioningService struct {
	store      provisioningStore
	audit      auditLogWriter
	cache      *CacheService
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	bcryptCost int
	now        func() time.Time
}

// NewProvisioningService constructs a ProvisioningService.
func NewProvisioningService(store provisioningStore, audit auditLogWriter, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, bcryptCost int) *ProvisioningService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &ProvisioningService{
		store:      store,
		audit:      audit,
		cache:      cache,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

// preparedRow is a row that passed the structural check and has its password hashed.
type preparedRow struct {
	row  dto.NormalizedRow
	hash string
}

// Provision creates every row it can inside one transaction. A failing row is
// undone through its savepoint and reported; the others still commit together.
// If the transaction itself fails nothing is saved and ErrProvisioningFailed is returned.
func (s *ProvisioningService) Provision(ctx context.Context, rows []dto.NormalizedRow, actor ProvisioningActor) (*dto.ProvisioningResult, error) {
	if len(rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no rows to provision")
	}
	// A started batch runs to completion even if the client goes away.
	ctx = context.WithoutCancel(ctx)
	log := logger.WithContext(ctx, s.logger)
	start := s.now()

	result := &dto.ProvisioningResult{
		BatchID: uuid.NewString(),
		Total:   len(rows),
		Success: []dto.ProvisionedUser{},
		Errors:  []dto.ProvisioningError{},
	}
	log = log.With(zap.String("batch_id", result.BatchID))

	prepared := make([]preparedRow, 0, len(rows))
	for _, row := range rows {
		row.Email = strings.ToLower(strings.TrimSpace(row.Email))
		row.Role = models.UserRole(strings.ToLower(strings.TrimSpace(string(row.Role))))
		if err := s.validator.Struct(row); err != nil {
			result.Errors = append(result.Errors, dto.ProvisioningError{Line: row.Line, Email: row.Email, Error: describeStructError(err)})
			continue
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(row.Password), s.bcryptCost)
		if err != nil {
			result.Errors = append(result.Errors, dto.ProvisioningError{Line: row.Line, Email: row.Email, Error: "could not hash password"})
			continue
		}
		prepared = append(prepared, preparedRow{row: row, hash: string(hash)})
	}

	if len(prepared) > 0 {
		if err := s.run(ctx, log, prepared, result); err != nil {
			s.metrics.RecordProvisioning(0, len(rows), s.now().Sub(start))
			log.Error("provisioning batch rolled back", zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrProvisioningFailed.Code, appErrors.ErrProvisioningFailed.Status, appErrors.ErrProvisioningFailed.Message)
		}
	}

	result.Created = len(result.Success)
	result.Message = fmt.Sprintf("%d of %d users created", result.Created, result.Total)
	result.CompletedAt = s.now().UTC()
	s.metrics.RecordProvisioning(result.Created, len(result.Errors), s.now().Sub(start))

	s.writeAudit(ctx, log, result, actor)
	if err := s.cache.Set(ctx, batchKey(result.BatchID), result, 0); err != nil {
		log.Warn("batch result not cached", zap.Error(err))
	}

	log.Info("provisioning batch committed", zap.Int("created", result.Created), zap.Int("failed", len(result.Errors)), zap.Int("total", result.Total))
	return result, nil
}

// ProvisionPreview provisions the rows a validation run cached under previewID.
// The preview is consumed so the same reviewed set cannot be committed twice.
func (s *ProvisioningService) ProvisionPreview(ctx context.Context, previewID string, actor ProvisioningActor) (*dto.ProvisioningResult, error) {
	if !s.cache.Enabled() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "previews are disabled, submit rows instead")
	}
	var preview bulkPreview
	hit, err := s.cache.Get(ctx, previewKey(previewID), &preview)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load preview")
	}
	if !hit {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "preview not found or expired")
	}

	result, err := s.Provision(ctx, preview.Rows, actor)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Delete(ctx, previewKey(previewID)); err != nil {
		s.logger.Warn("preview not evicted", zap.String("preview_id", previewID), zap.Error(err))
	}
	return result, nil
}

// Result returns a cached provisioning outcome by batch id.
func (s *ProvisioningService) Result(ctx context.Context, batchID string) (*dto.ProvisioningResult, error) {
	var result dto.ProvisioningResult
	hit, err := s.cache.Get(ctx, batchKey(batchID), &result)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	if !hit {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found or expired")
	}
	return &result, nil
}

func (s *ProvisioningService) run(ctx context.Context, log *zap.Logger, rows []preparedRow, result *dto.ProvisioningResult) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Warn("rollback failed", zap.Error(rbErr))
			}
		}
	}()

	cycle, err := tx.ActiveCycle(ctx)
	if err != nil {
		return err
	}

	success := make([]dto.ProvisionedUser, 0, len(rows))
	failures := make([]dto.ProvisioningError, 0)
	for i, p := range rows {
		savepoint := fmt.Sprintf("provision_row_%d", i+1)
		if err := tx.Savepoint(ctx, savepoint); err != nil {
			return err
		}

		created, rowErr := s.createRow(ctx, tx, p, cycle)
		if rowErr != nil {
			if err := tx.RollbackTo(ctx, savepoint); err != nil {
				return err
			}
			log.Warn("provisioning row failed", zap.Int("line", p.row.Line), zap.String("email", p.row.Email), zap.Error(rowErr))
			failures = append(failures, dto.ProvisioningError{Line: p.row.Line, Email: p.row.Email, Error: describeRowFailure(rowErr)})
			continue
		}

		if err := tx.Release(ctx, savepoint); err != nil {
			return err
		}
		success = append(success, created)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	result.Success = append(result.Success, success...)
	result.Errors = append(result.Errors, failures...)
	return nil
}

func (s *ProvisioningService) createRow(ctx context.Context, tx repository.ProvisioningTx, p preparedRow, cycle *models.SchoolCycle) (dto.ProvisionedUser, error) {
	row := p.row
	user := &models.User{Email: row.Email, PasswordHash: p.hash, Role: row.Role, Active: true}
	if err := tx.CreateUser(ctx, user); err != nil {
		return dto.ProvisionedUser{}, err
	}
	out := dto.ProvisionedUser{Line: row.Line, UserID: user.ID, Email: user.Email, DisplayName: row.DisplayName(), Role: row.Role}

	switch profile := row.Profile().(type) {
	case dto.StudentProfile:
		student := &models.Student{UserID: user.ID, PersonalCode: profile.PersonalCode, FirstName: row.FirstName, LastName: row.LastName, Plan: profile.Plan}
		if err := tx.CreateStudent(ctx, student); err != nil {
			return dto.ProvisionedUser{}, err
		}
		enrolled, err := s.enroll(ctx, tx, student, profile.Grade, cycle)
		if err != nil {
			return dto.ProvisionedUser{}, err
		}
		out.Enrolled = enrolled
	case dto.TeacherProfile:
		teacher := &models.Teacher{UserID: user.ID, PersonalCode: profile.PersonalCode, FirstName: row.FirstName, LastName: row.LastName, Shift: profile.Shift}
		if err := tx.CreateTeacher(ctx, teacher); err != nil {
			return dto.ProvisionedUser{}, err
		}
	case dto.DirectorProfile:
		if err := tx.CreateDirector(ctx, &models.Director{UserID: user.ID, FirstName: row.FirstName, LastName: row.LastName}); err != nil {
			return dto.ProvisionedUser{}, err
		}
	default:
		return dto.ProvisionedUser{}, fmt.Errorf("unknown role %q", row.Role)
	}
	return out, nil
}

// enroll attaches a student to the grade of the active cycle. A missing cycle
// or grade pairing is not an error; the student simply stays unenrolled.
func (s *ProvisioningService) enroll(ctx context.Context, tx repository.ProvisioningTx, student *models.Student, grade string, cycle *models.SchoolCycle) (bool, error) {
	if grade == "" || cycle == nil {
		return false, nil
	}
	gradeCycle, err := tx.FindGradeCycle(ctx, grade, cycle.ID)
	if err != nil {
		return false, err
	}
	if gradeCycle == nil {
		return false, nil
	}

	now := s.now()
	enrollment := &models.Enrollment{
		StudentID:      student.ID,
		GradeCycleID:   gradeCycle.ID,
		EnrollmentDate: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		Status:         models.EnrollmentStatusActive,
	}
	if err := tx.CreateEnrollment(ctx, enrollment); err != nil {
		return false, err
	}
	return true, nil
}

func (s *ProvisioningService) writeAudit(ctx context.Context, log *zap.Logger, result *dto.ProvisioningResult, actor ProvisioningActor) {
	if s.audit == nil || result.Created == 0 {
		return
	}
	emails := make([]string, 0, len(result.Success))
	for _, u := range result.Success {
		emails = append(emails, u.Email)
	}
	payload, err := json.Marshal(map[string]interface{}{
		"created": result.Created,
		"total":   result.Total,
		"emails":  emails,
	})
	if err != nil {
		log.Warn("audit payload not encoded", zap.Error(err))
		return
	}

	entry := &models.AuditLog{
		Action:     models.AuditActionUserBulkCreate,
		Resource:   "users",
		ResourceID: &result.BatchID,
		NewValues:  payload,
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
	}
	if actor.UserID != "" {
		entry.UserID = &actor.UserID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		log.Warn("audit log not written", zap.Error(err))
	}
}

func describeRowFailure(err error) string {
	if repository.IsUniqueViolation(err) {
		constraint := repository.ViolatedConstraint(err)
		switch {
		case strings.Contains(constraint, "email"):
			return "email already exists"
		case strings.Contains(constraint, "personal_code"):
			return "codigo_personal already exists"
		default:
			return "user already exists"
		}
	}
	return "could not create user"
}

func describeStructError(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return "invalid row"
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return "invalid row: " + strings.Join(fields, ", ")
}
