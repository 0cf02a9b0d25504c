package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/models"
)

// CycleRepository reads school cycles and their grade pairings.
type CycleRepository struct {
	db *sqlx.DB
}

// NewCycleRepository constructs a CycleRepository.
func NewCycleRepository(db *sqlx.DB) *CycleRepository {
	return &CycleRepository{db: db}
}

// FindActive returns the active school cycle, or nil when none is flagged.
func (r *CycleRepository) FindActive(ctx context.Context) (*models.SchoolCycle, error) {
	return findActiveCycle(ctx, r.db)
}

// FindActiveWithTx is FindActive scoped to tx.
func (r *CycleRepository) FindActiveWithTx(ctx context.Context, tx *sqlx.Tx) (*models.SchoolCycle, error) {
	return findActiveCycle(ctx, tx)
}

// FindGradeCycleWithTx returns the pairing of the named grade with cycleID, or nil when there is none.
func (r *CycleRepository) FindGradeCycleWithTx(ctx context.Context, tx *sqlx.Tx, gradeName, cycleID string) (*models.GradeCycle, error) {
	const query = `SELECT gc.id, gc.grade_id, gc.cycle_id, g.name AS grade_name
FROM grade_cycles gc
JOIN grades g ON g.id = gc.grade_id
WHERE LOWER(g.name) = $1 AND gc.cycle_id = $2
LIMIT 1`
	var gc models.GradeCycle
	if err := sqlx.GetContext(ctx, tx, &gc, query, strings.ToLower(strings.TrimSpace(gradeName)), cycleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find grade cycle: %w", err)
	}
	return &gc, nil
}

func findActiveCycle(ctx context.Context, q sqlx.QueryerContext) (*models.SchoolCycle, error) {
	const query = `SELECT id, name, year, is_active, created_at FROM school_cycles WHERE is_active = TRUE ORDER BY year DESC LIMIT 1`
	var cycle models.SchoolCycle
	if err := sqlx.GetContext(ctx, q, &cycle, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active cycle: %w", err)
	}
	return &cycle, nil
}
