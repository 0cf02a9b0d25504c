package dto

import (
	"strings"
	"time"

	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/models"
)

// Bulk upload column names.
const (
	ColumnEmail        = "email"
	ColumnPassword     = "password"
	ColumnRole         = "rol"
	ColumnFirstName    = "nombre"
	ColumnLastName     = "apellido"
	ColumnPersonalCode = "codigo_personal"
	ColumnPlan         = "plan"
	ColumnShift        = "jornada"
	ColumnGrade        = "grado"
)

// RequiredColumns must all be present in an upload header.
var RequiredColumns = []string{ColumnEmail, ColumnPassword, ColumnRole, ColumnFirstName, ColumnLastName}

// NormalizedRow is an accepted upload row in the canonical form used for persistence.
type NormalizedRow struct {
	Line         int                 `json:"line"`
	Email        string              `json:"email" validate:"required,email"`
	Password     string              `json:"password" validate:"required"`
	Role         models.UserRole     `json:"rol" validate:"required,oneof=student teacher director"`
	FirstName    string              `json:"nombre" validate:"required"`
	LastName     string              `json:"apellido" validate:"required"`
	PersonalCode string              `json:"codigo_personal,omitempty" validate:"required_unless=Role director"`
	Plan         models.StudyPlan    `json:"plan,omitempty" validate:"required_if=Role student"`
	Shift        models.TeacherShift `json:"jornada,omitempty" validate:"required_if=Role teacher"`
	Grade        string              `json:"grado,omitempty"`
}

// DisplayName joins the first and last names.
func (r NormalizedRow) DisplayName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// Profile returns the role-specific part of the row, or nil for an unknown role.
func (r NormalizedRow) Profile() RoleProfile {
	switch r.Role {
	case models.RoleStudent:
		return StudentProfile{PersonalCode: r.PersonalCode, Plan: r.Plan, Grade: r.Grade}
	case models.RoleTeacher:
		return TeacherProfile{PersonalCode: r.PersonalCode, Shift: r.Shift}
	case models.RoleDirector:
		return DirectorProfile{}
	default:
		return nil
	}
}

// RoleProfile is one of StudentProfile, TeacherProfile or DirectorProfile.
type RoleProfile interface {
	Role() models.UserRole
	roleProfile()
}

// StudentProfile carries the student-only columns.
type StudentProfile struct {
	PersonalCode string
	Plan         models.StudyPlan
	Grade        string
}

// TeacherProfile carries the teacher-only columns.
type TeacherProfile struct {
	PersonalCode string
	Shift        models.TeacherShift
}

// DirectorProfile has no role-specific columns.
type DirectorProfile struct{}

func (StudentProfile) Role() models.UserRole  { return models.RoleStudent }
func (TeacherProfile) Role() models.UserRole  { return models.RoleTeacher }
func (DirectorProfile) Role() models.UserRole { return models.RoleDirector }

func (StudentProfile) roleProfile()  {}
func (TeacherProfile) roleProfile()  {}
func (DirectorProfile) roleProfile() {}

// RejectedRow groups the messages raised for one rejected line.
type RejectedRow struct {
	Line     int      `json:"line"`
	Email    string   `json:"email"`
	Messages []string `json:"messages"`
}

// BulkValidationReport summarises a validation run over an upload.
type BulkValidationReport struct {
	Filename   string          `json:"filename"`
	Format     string          `json:"format"`
	Encoding   string          `json:"encoding"`
	Confidence int             `json:"confidence"`
	Total      int             `json:"total"`
	Valid      int             `json:"valid"`
	Invalid    int             `json:"invalid"`
	Errors     []string        `json:"errors"`
	Rows       []NormalizedRow `json:"rows"`
	Rejected   []RejectedRow   `json:"rejected"`
	// ActiveCycle names the school cycle students with a grado would be enrolled in.
	ActiveCycle string     `json:"active_cycle,omitempty"`
	PreviewID   string     `json:"preview_id,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// ProvisionRequest is the payload of the provisioning endpoint. Exactly one of
// Rows or PreviewID is expected.
type ProvisionRequest struct {
	Rows      []NormalizedRow `json:"rows"`
	PreviewID string          `json:"preview_id"`
}

// ProvisionedUser is one created account.
type ProvisionedUser struct {
	Line        int             `json:"line"`
	UserID      string          `json:"user_id"`
	Email       string          `json:"email"`
	DisplayName string          `json:"displayName"`
	Role        models.UserRole `json:"role"`
	Enrolled    bool            `json:"enrolled"`
}

// ProvisioningError is one row that could not be created.
type ProvisioningError struct {
	Line  int    `json:"line"`
	Email string `json:"email"`
	Error string `json:"error"`
}

// ProvisioningResult is the outcome of one provisioning call.
type ProvisioningResult struct {
	BatchID     string              `json:"batch_id"`
	Message     string              `json:"message"`
	Total       int                 `json:"total"`
	Created     int                 `json:"created"`
	Success     []ProvisionedUser   `json:"success"`
	Errors      []ProvisioningError `json:"errors"`
	CompletedAt time.Time           `json:"completed_at"`
}
