package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/dto"
	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/models"
	"github.com/jromanv/portal-liceo-tecpan-sub000/pkg/tabular"
)

type stubAccounts struct {
	existing map[string]bool
	err      error
	calls    int
}

func (s *stubAccounts) EmailExists(ctx context.Context, email string) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	return s.existing[email], nil
}

type stubCodes struct {
	existing map[string]bool
	err      error
	calls    int
}

func (s *stubCodes) CodeExists(ctx context.Context, code string) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	return s.existing[code], nil
}

type validatorFixture struct {
	accounts *stubAccounts
	students *stubCodes
	teachers *stubCodes
	v        *BulkRowValidator
}

func newValidatorFixture() *validatorFixture {
	f := &validatorFixture{
		accounts: &stubAccounts{existing: map[string]bool{}},
		students: &stubCodes{existing: map[string]bool{}},
		teachers: &stubCodes{existing: map[string]bool{}},
	}
	f.v = NewBulkRowValidator(f.accounts, f.students, f.teachers, []string{"liceotecpan.edu.gt"}, nil)
	return f
}

func uploadRow(line int, values map[string]string) tabular.Row {
	return tabular.Row{Line: line, Values: values}
}

func studentValues(email, code string) map[string]string {
	return map[string]string{
		"email": email, "password": "secreto", "rol": "student", "nombre": "Ana", "apellido": "Ruiz",
		"codigo_personal": code, "plan": "diario", "jornada": "", "grado": "Primero Básico",
	}
}

func teacherValues(email, code, shift string) map[string]string {
	return map[string]string{
		"email": email, "password": "secreto", "rol": "teacher", "nombre": "Luis", "apellido": "Soto",
		"codigo_personal": code, "plan": "", "jornada": shift,
	}
}

func directorValues(email string) map[string]string {
	return map[string]string{"email": email, "password": "secreto", "rol": "director", "nombre": "Marta", "apellido": "Pérez"}
}

func TestValidateAcceptsAndNormalizesStudent(t *testing.T) {
	f := newValidatorFixture()
	values := studentValues("  Ana.Ruiz@LiceoTecpan.edu.gt ", " E-001 ")
	values["rol"] = " Student "
	values["plan"] = " Fin_De_Semana "

	outcome, err := f.v.Validate(context.Background(), uploadRow(2, values), NewValidationState())
	require.NoError(t, err)
	require.True(t, outcome.Accepted(), outcome.Messages)

	row := outcome.Row
	assert.Equal(t, "ana.ruiz@liceotecpan.edu.gt", row.Email)
	assert.Equal(t, models.RoleStudent, row.Role)
	assert.Equal(t, "E-001", row.PersonalCode)
	assert.Equal(t, models.PlanWeekend, row.Plan)
	assert.Equal(t, "Primero Básico", row.Grade)
	assert.Equal(t, dto.StudentProfile{PersonalCode: "E-001", Plan: models.PlanWeekend, Grade: "Primero Básico"}, row.Profile())
}

func TestValidateTeacherWithAmbas(t *testing.T) {
	f := newValidatorFixture()
	outcome, err := f.v.Validate(context.Background(), uploadRow(2, teacherValues("luis@liceotecpan.edu.gt", "D-1", "ambas")), NewValidationState())
	require.NoError(t, err)
	require.True(t, outcome.Accepted(), outcome.Messages)
	assert.Equal(t, models.ShiftBoth, outcome.Row.Shift)
	assert.Equal(t, dto.TeacherProfile{PersonalCode: "D-1", Shift: models.ShiftBoth}, outcome.Row.Profile())
}

func TestValidateDirectorNeedsNoCode(t *testing.T) {
	f := newValidatorFixture()
	outcome, err := f.v.Validate(context.Background(), uploadRow(2, directorValues("marta@liceotecpan.edu.gt")), NewValidationState())
	require.NoError(t, err)
	require.True(t, outcome.Accepted(), outcome.Messages)
	assert.Equal(t, dto.DirectorProfile{}, outcome.Row.Profile())
	assert.Zero(t, f.students.calls+f.teachers.calls)
}

func TestValidateDuplicateEmailCaseInsensitive(t *testing.T) {
	f := newValidatorFixture()
	state := NewValidationState()

	first, err := f.v.Validate(context.Background(), uploadRow(2, studentValues("ana@liceotecpan.edu.gt", "E-1")), state)
	require.NoError(t, err)
	assert.True(t, first.Accepted())

	second, err := f.v.Validate(context.Background(), uploadRow(3, studentValues("ANA@liceotecpan.edu.gt", "E-2")), state)
	require.NoError(t, err)
	assert.False(t, second.Accepted())
	assert.Equal(t, []string{"row 3: email ana@liceotecpan.edu.gt is duplicated in the file"}, second.Messages)
}

func TestValidateDuplicateEmailIsMonotonic(t *testing.T) {
	f := newValidatorFixture()
	state := NewValidationState()

	invalid := studentValues("ana@liceotecpan.edu.gt", "E-1")
	invalid["password"] = "123"
	first, err := f.v.Validate(context.Background(), uploadRow(2, invalid), state)
	require.NoError(t, err)
	assert.False(t, first.Accepted())

	for line := 3; line <= 5; line++ {
		outcome, err := f.v.Validate(context.Background(), uploadRow(line, studentValues("ana@liceotecpan.edu.gt", "E-"+string(rune('0'+line)))), state)
		require.NoError(t, err)
		assert.False(t, outcome.Accepted())
		assert.Contains(t, strings.Join(outcome.Messages, "|"), "duplicated in the file")
	}
}

func TestValidateStudentWithoutPlan(t *testing.T) {
	f := newValidatorFixture()
	values := studentValues("ana@liceotecpan.edu.gt", "E-1")
	values["plan"] = "  "

	outcome, err := f.v.Validate(context.Background(), uploadRow(4, values), NewValidationState())
	require.NoError(t, err)
	assert.False(t, outcome.Accepted())
	assert.Equal(t, []string{"row 4: plan is required for students"}, outcome.Messages)
}

func TestValidatePasswordBoundary(t *testing.T) {
	f := newValidatorFixture()

	six := directorValues("six@liceotecpan.edu.gt")
	six["password"] = "abcdef"
	outcome, err := f.v.Validate(context.Background(), uploadRow(2, six), NewValidationState())
	require.NoError(t, err)
	assert.True(t, outcome.Accepted())

	five := directorValues("five@liceotecpan.edu.gt")
	five["password"] = "abcde"
	outcome, err = f.v.Validate(context.Background(), uploadRow(3, five), NewValidationState())
	require.NoError(t, err)
	assert.Equal(t, []string{"row 3: password must be at least 6 characters"}, outcome.Messages)

	multibyte := directorValues("mb@liceotecpan.edu.gt")
	multibyte["password"] = "ñandú!"
	outcome, err = f.v.Validate(context.Background(), uploadRow(4, multibyte), NewValidationState())
	require.NoError(t, err)
	assert.True(t, outcome.Accepted())
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	f := newValidatorFixture()
	values := map[string]string{"email": "ana@gmail.com", "password": "123", "rol": "admin", "nombre": "", "apellido": "Ruiz"}

	outcome, err := f.v.Validate(context.Background(), uploadRow(7, values), NewValidationState())
	require.NoError(t, err)
	assert.Nil(t, outcome.Row)
	assert.Equal(t, []string{
		`row 7: email domain "gmail.com" is not an institutional domain`,
		"row 7: password must be at least 6 characters",
		"row 7: nombre is required",
		`row 7: rol "admin" must be one of student, teacher, director`,
	}, outcome.Messages)
}

func TestValidateMissingFields(t *testing.T) {
	f := newValidatorFixture()
	outcome, err := f.v.Validate(context.Background(), uploadRow(2, map[string]string{}), NewValidationState())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"row 2: email is required",
		"row 2: password is required",
		"row 2: nombre is required",
		"row 2: apellido is required",
		"row 2: rol is required",
	}, outcome.Messages)
	assert.Zero(t, f.accounts.calls)
}

func TestValidateRejectsMalformedEmail(t *testing.T) {
	f := newValidatorFixture()
	outcome, err := f.v.Validate(context.Background(), uploadRow(2, directorValues("not-an-email")), NewValidationState())
	require.NoError(t, err)
	assert.Equal(t, []string{`row 2: email "not-an-email" is not a valid address`}, outcome.Messages)
}

func TestValidateCodesAreScopedPerRole(t *testing.T) {
	f := newValidatorFixture()
	state := NewValidationState()
	ctx := context.Background()

	student, err := f.v.Validate(ctx, uploadRow(2, studentValues("a@liceotecpan.edu.gt", "X-1")), state)
	require.NoError(t, err)
	assert.True(t, student.Accepted())

	teacher, err := f.v.Validate(ctx, uploadRow(3, teacherValues("b@liceotecpan.edu.gt", "X-1", "diario")), state)
	require.NoError(t, err)
	assert.True(t, teacher.Accepted(), teacher.Messages)

	again, err := f.v.Validate(ctx, uploadRow(4, studentValues("c@liceotecpan.edu.gt", "X-1")), state)
	require.NoError(t, err)
	assert.Equal(t, []string{"row 4: codigo_personal X-1 is duplicated in the file for role student"}, again.Messages)
}

func TestValidatePersistedConflicts(t *testing.T) {
	f := newValidatorFixture()
	f.accounts.existing["ana@liceotecpan.edu.gt"] = true
	f.teachers.existing["D-9"] = true

	outcome, err := f.v.Validate(context.Background(), uploadRow(2, studentValues("ana@liceotecpan.edu.gt", "E-1")), NewValidationState())
	require.NoError(t, err)
	assert.Equal(t, []string{"row 2: email ana@liceotecpan.edu.gt is already registered"}, outcome.Messages)

	outcome, err = f.v.Validate(context.Background(), uploadRow(3, teacherValues("luis@liceotecpan.edu.gt", "D-9", "diario")), NewValidationState())
	require.NoError(t, err)
	assert.Equal(t, []string{"row 3: codigo_personal D-9 is already registered for role teacher"}, outcome.Messages)
}

func TestValidateRoleSpecificColumns(t *testing.T) {
	f := newValidatorFixture()

	noCode := teacherValues("luis@liceotecpan.edu.gt", "", "mañana")
	outcome, err := f.v.Validate(context.Background(), uploadRow(2, noCode), NewValidationState())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"row 2: codigo_personal is required for teacher",
		`row 2: jornada "mañana" must be one of diario, fin_de_semana, ambas`,
	}, outcome.Messages)

	badPlan := studentValues("ana@liceotecpan.edu.gt", "E-1")
	badPlan["plan"] = "nocturno"
	outcome, err = f.v.Validate(context.Background(), uploadRow(3, badPlan), NewValidationState())
	require.NoError(t, err)
	assert.Equal(t, []string{`row 3: plan "nocturno" must be one of diario, fin_de_semana`}, outcome.Messages)

	noShift := teacherValues("luis@liceotecpan.edu.gt", "D-1", "")
	outcome, err = f.v.Validate(context.Background(), uploadRow(4, noShift), NewValidationState())
	require.NoError(t, err)
	assert.Equal(t, []string{"row 4: jornada is required for teachers"}, outcome.Messages)
}

func TestValidateLookupFailure(t *testing.T) {
	f := newValidatorFixture()
	f.accounts.err = errors.New("db down")

	_, err := f.v.Validate(context.Background(), uploadRow(2, directorValues("marta@liceotecpan.edu.gt")), NewValidationState())
	require.Error(t, err)

	f = newValidatorFixture()
	f.students.err = errors.New("db down")
	_, err = f.v.Validate(context.Background(), uploadRow(2, studentValues("ana@liceotecpan.edu.gt", "E-1")), NewValidationState())
	require.Error(t, err)
}

func TestEmptyAllowListRejectsEveryDomain(t *testing.T) {
	v := NewBulkRowValidator(&stubAccounts{}, &stubCodes{}, &stubCodes{}, nil, nil)
	outcome, err := v.Validate(context.Background(), uploadRow(2, directorValues("marta@liceotecpan.edu.gt")), NewValidationState())
	require.NoError(t, err)
	assert.False(t, outcome.Accepted())
}
