package models

import "time"

// SchoolCycle models an academic year. At most one is active at a time.
type SchoolCycle struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Year      int       `db:"year" json:"year"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// GradeCycle pairs a grade with a school cycle; enrollments attach to it.
type GradeCycle struct {
	ID        string `db:"id" json:"id"`
	GradeID   string `db:"grade_id" json:"grade_id"`
	CycleID   string `db:"cycle_id" json:"cycle_id"`
	GradeName string `db:"grade_name" json:"grade_name"`
}
