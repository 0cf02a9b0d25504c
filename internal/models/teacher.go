package models

import "time"

// TeacherShift is the jornada a teacher works.
type TeacherShift string

const (
	ShiftWeekday TeacherShift = "diario"
	ShiftWeekend TeacherShift = "fin_de_semana"
	ShiftBoth    TeacherShift = "ambas"
)

// Teacher is the role profile of a teacher account.
type Teacher struct {
	ID           string       `db:"id" json:"id"`
	UserID       string       `db:"user_id" json:"user_id"`
	PersonalCode string       `db:"personal_code" json:"personal_code"`
	FirstName    string       `db:"first_name" json:"first_name"`
	LastName     string       `db:"last_name" json:"last_name"`
	Shift        TeacherShift `db:"jornada" json:"jornada"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// Director is the role profile of a director account.
type Director struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
