package models

import "time"

// StudyPlan is the schedule a student attends.
type StudyPlan string

const (
	PlanWeekday StudyPlan = "diario"
	PlanWeekend StudyPlan = "fin_de_semana"
)

// Student is the role profile of a student account.
type Student struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	PersonalCode string    `db:"personal_code" json:"personal_code"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Plan         StudyPlan `db:"plan" json:"plan"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
