package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"

	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/dto"
	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/models"
	"github.com/jromanv/portal-liceo-tecpan-sub000/pkg/tabular"
)

// MinPasswordLength is the shortest password accepted in an upload.
const MinPasswordLength = 6

type accountLookup interface {
	EmailExists(ctx context.Context, email string) (bool, error)
}

type personalCodeLookup interface {
	CodeExists(ctx context.Context, code string) (bool, error)
}

// ValidationState tracks what earlier rows of the same file already claimed.
// One state belongs to exactly one validation run.
type ValidationState struct {
	emails map[string]struct{}
	codes  map[string]struct{}
}

// NewValidationState returns an empty state for a new file.
func NewValidationState() *ValidationState {
	return &ValidationState{emails: map[string]struct{}{}, codes: map[string]struct{}{}}
}

// claimEmail records email and reports whether an earlier row already used it.
func (s *ValidationState) claimEmail(email string) bool {
	if _, seen := s.emails[email]; seen {
		return true
	}
	s.emails[email] = struct{}{}
	return false
}

// claimCode records the (role, code) pair and reports whether it was already used.
// Codes are unique per role table, so the same code may appear once per role.
func (s *ValidationState) claimCode(role models.UserRole, code string) bool {
	key := string(role) + "\x00" + code
	if _, seen := s.codes[key]; seen {
		return true
	}
	s.codes[key] = struct{}{}
	return false
}

// RowOutcome is the verdict for one row. No messages means the row was accepted.
type RowOutcome struct {
	Line     int
	Email    string
	Messages []string
	Row      *dto.NormalizedRow
}

// Accepted reports whether the row passed every rule.
func (o RowOutcome) Accepted() bool {
	return len(o.Messages) == 0 && o.Row != nil
}

// BulkRowValidator applies the upload rules to one row at a time.
type BulkRowValidator struct {
	users     accountLookup
	students  personalCodeLookup
	teachers  personalCodeLookup
	domains   map[string]struct{}
	validator *validator.Validate
}

// NewBulkRowValidator builds a validator accepting addresses under allowedDomains.
func NewBulkRowValidator(users accountLookup, students, teachers personalCodeLookup, allowedDomains []string, validate *validator.Validate) *BulkRowValidator {
	if validate == nil {
		validate = validator.New()
	}
	domains := make(map[string]struct{}, len(allowedDomains))
	for _, d := range allowedDomains {
		d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "@"))
		if d != "" {
			domains[d] = struct{}{}
		}
	}
	return &BulkRowValidator{users: users, students: students, teachers: teachers, domains: domains, validator: validate}
}

// Validate evaluates every rule against row and returns all violations. It only
// reads from the database; an error is returned when a lookup itself fails.
func (v *BulkRowValidator) Validate(ctx context.Context, row tabular.Row, state *ValidationState) (RowOutcome, error) {
	email := strings.ToLower(row.Get(dto.ColumnEmail))
	outcome := RowOutcome{Line: row.Line, Email: email}
	fail := func(format string, args ...interface{}) {
		outcome.Messages = append(outcome.Messages, fmt.Sprintf("row %d: ", row.Line)+fmt.Sprintf(format, args...))
	}

	if email == "" {
		fail("email is required")
	} else {
		if err := v.validator.Var(email, "email"); err != nil {
			fail("email %q is not a valid address", email)
		} else if !v.domainAllowed(email) {
			fail("email domain %q is not an institutional domain", domainOf(email))
		}

		if state.claimEmail(email) {
			fail("email %s is duplicated in the file", email)
		}

		exists, err := v.users.EmailExists(ctx, email)
		if err != nil {
			return RowOutcome{}, fmt.Errorf("row %d: %w", row.Line, err)
		}
		if exists {
			fail("email %s is already registered", email)
		}
	}

	password := row.Values[dto.ColumnPassword]
	switch {
	case strings.TrimSpace(password) == "":
		fail("password is required")
	case utf8.RuneCountInString(password) < MinPasswordLength:
		fail("password must be at least %d characters", MinPasswordLength)
	}

	firstName := norm.NFC.String(row.Get(dto.ColumnFirstName))
	if firstName == "" {
		fail("nombre is required")
	}
	lastName := norm.NFC.String(row.Get(dto.ColumnLastName))
	if lastName == "" {
		fail("apellido is required")
	}

	normalized := &dto.NormalizedRow{
		Line:      row.Line,
		Email:     email,
		Password:  password,
		FirstName: firstName,
		LastName:  lastName,
	}

	rawRole := strings.ToLower(row.Get(dto.ColumnRole))
	role, ok := models.ParseUserRole(rawRole)
	switch {
	case rawRole == "":
		fail("rol is required")
	case !ok:
		fail("rol %q must be one of student, teacher, director", rawRole)
	default:
		normalized.Role = role
		if err := v.validateProfile(ctx, row, role, state, normalized, fail); err != nil {
			return RowOutcome{}, err
		}
	}

	if len(outcome.Messages) == 0 {
		outcome.Row = normalized
	}
	return outcome, nil
}

// validateProfile applies the rules specific to the role variant decided by the rol column.
func (v *BulkRowValidator) validateProfile(ctx context.Context, row tabular.Row, role models.UserRole, state *ValidationState, out *dto.NormalizedRow, fail func(string, ...interface{})) error {
	switch role {
	case models.RoleStudent:
		if err := v.validateCode(ctx, row, role, v.students, state, out, fail); err != nil {
			return err
		}
		plan := strings.ToLower(row.Get(dto.ColumnPlan))
		switch models.StudyPlan(plan) {
		case models.PlanWeekday, models.PlanWeekend:
			out.Plan = models.StudyPlan(plan)
		case "":
			fail("plan is required for students")
		default:
			fail("plan %q must be one of diario, fin_de_semana", plan)
		}
		out.Grade = norm.NFC.String(row.Get(dto.ColumnGrade))
	case models.RoleTeacher:
		if err := v.validateCode(ctx, row, role, v.teachers, state, out, fail); err != nil {
			return err
		}
		shift := strings.ToLower(row.Get(dto.ColumnShift))
		switch models.TeacherShift(shift) {
		case models.ShiftWeekday, models.ShiftWeekend, models.ShiftBoth:
			out.Shift = models.TeacherShift(shift)
		case "":
			fail("jornada is required for teachers")
		default:
			fail("jornada %q must be one of diario, fin_de_semana, ambas", shift)
		}
	case models.RoleDirector:
		// Directors carry no personal code, plan or jornada.
	}
	return nil
}

func (v *BulkRowValidator) validateCode(ctx context.Context, row tabular.Row, role models.UserRole, lookup personalCodeLookup, state *ValidationState, out *dto.NormalizedRow, fail func(string, ...interface{})) error {
	code := row.Get(dto.ColumnPersonalCode)
	if code == "" {
		fail("codigo_personal is required for %s", role)
		return nil
	}
	out.PersonalCode = code

	if state.claimCode(role, code) {
		fail("codigo_personal %s is duplicated in the file for role %s", code, role)
	}
	exists, err := lookup.CodeExists(ctx, code)
	if err != nil {
		return fmt.Errorf("row %d: %w", row.Line, err)
	}
	if exists {
		fail("codigo_personal %s is already registered for role %s", code, role)
	}
	return nil
}

func (v *BulkRowValidator) domainAllowed(email string) bool {
	_, ok := v.domains[domainOf(email)]
	return ok
}

func domainOf(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return email[at+1:]
}
