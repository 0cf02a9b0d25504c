package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/dto"
	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/models"
	appErrors "github.com/jromanv/portal-liceo-tecpan-sub000/pkg/errors"
	"github.com/jromanv/portal-liceo-tecpan-sub000/pkg/logger"
	"github.com/jromanv/portal-liceo-tecpan-sub000/pkg/tabular"
)

const (
	previewKeyPrefix = "bulk:preview:"
	batchKeyPrefix   = "bulk:batch:"
)

func previewKey(id string) string { return previewKeyPrefix + id }
func batchKey(id string) string   { return batchKeyPrefix + id }

type rowValidator interface {
	Validate(ctx context.Context, row tabular.Row, state *ValidationState) (RowOutcome, error)
}

type activeCycleFinder interface {
	FindActive(ctx context.Context) (*models.SchoolCycle, error)
}

// BulkUpload is one uploaded file. It lives only for the duration of a request.
type BulkUpload struct {
	Filename string
	Content  []byte
}

// bulkPreview is what a validation run leaves in the cache for the provisioning step.
type bulkPreview struct {
	Rows      []dto.NormalizedRow `json:"rows"`
	CreatedAt time.Time           `json:"created_at"`
}

// BulkUserService validates uploads and prepares previews of the accounts they would create.
type BulkUserService struct {
	rows    rowValidator
	cycles  activeCycleFinder
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewBulkUserService constructs the validation orchestrator. cycles and cache are optional.
func NewBulkUserService(rows rowValidator, cycles activeCycleFinder, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *BulkUserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BulkUserService{rows: rows, cycles: cycles, cache: cache, metrics: metrics, logger: logger, now: time.Now}
}

// Validate parses the upload, checks its header and classifies every data row in file order.
func (s *BulkUserService) Validate(ctx context.Context, upload BulkUpload) (*dto.BulkValidationReport, error) {
	log := logger.WithContext(ctx, s.logger).With(zap.String("filename", upload.Filename), zap.Int("bytes", len(upload.Content)))

	table, err := s.parse(upload)
	if err != nil {
		appErr := appErrors.FromError(err)
		s.metrics.RecordUploadRejected(appErr.Code)
		log.Info("bulk upload rejected", zap.String("code", appErr.Code), zap.Error(err))
		return nil, err
	}

	report := &dto.BulkValidationReport{
		Filename:   upload.Filename,
		Format:     string(table.Format),
		Encoding:   table.Encoding.Charset,
		Confidence: table.Encoding.Confidence,
		Total:      len(table.Rows),
		Errors:     []string{},
		Rows:       []dto.NormalizedRow{},
		Rejected:   []dto.RejectedRow{},
	}

	state := NewValidationState()
	for _, row := range table.Rows {
		outcome, err := s.rows.Validate(ctx, row, state)
		if err != nil {
			log.Error("bulk row lookup failed", zap.Int("line", row.Line), zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate rows")
		}
		if outcome.Accepted() {
			report.Rows = append(report.Rows, *outcome.Row)
			continue
		}
		report.Errors = append(report.Errors, outcome.Messages...)
		report.Rejected = append(report.Rejected, dto.RejectedRow{Line: outcome.Line, Email: outcome.Email, Messages: outcome.Messages})
	}
	report.Valid = len(report.Rows)
	report.Invalid = len(report.Rejected)
	s.metrics.RecordValidation(report.Valid, report.Invalid)

	if s.cycles != nil {
		cycle, err := s.cycles.FindActive(ctx)
		if err != nil {
			log.Warn("active cycle lookup failed", zap.Error(err))
		} else if cycle != nil {
			report.ActiveCycle = cycle.Name
		}
	}

	s.storePreview(ctx, log, report)

	log.Info("bulk upload validated",
		zap.String("encoding", report.Encoding),
		zap.Int("total", report.Total),
		zap.Int("valid", report.Valid),
		zap.Int("invalid", report.Invalid),
	)
	return report, nil
}

func (s *BulkUserService) parse(upload BulkUpload) (*tabular.Table, error) {
	if len(upload.Content) == 0 {
		return nil, appErrors.ErrEmptyFile
	}

	table, err := tabular.Parse(upload.Filename, upload.Content)
	switch {
	case err == nil:
	case errors.Is(err, tabular.ErrEmptyFile):
		return nil, appErrors.ErrEmptyFile
	case errors.Is(err, tabular.ErrUnsupportedFormat):
		return nil, appErrors.Wrap(err, appErrors.ErrUnsupportedFile.Code, appErrors.ErrUnsupportedFile.Status, "unsupported file type, upload a .csv or .xlsx file")
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrUnparseableFile.Code, appErrors.ErrUnparseableFile.Status, appErrors.ErrUnparseableFile.Message)
	}

	if missing := table.MissingColumns(dto.RequiredColumns...); len(missing) > 0 {
		msg := fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", "))
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrMissingColumns, msg), missing...)
	}
	return table, nil
}

func (s *BulkUserService) storePreview(ctx context.Context, log *zap.Logger, report *dto.BulkValidationReport) {
	if !s.cache.Enabled() || report.Valid == 0 {
		return
	}
	id := uuid.NewString()
	now := s.now().UTC()
	if err := s.cache.Set(ctx, previewKey(id), bulkPreview{Rows: report.Rows, CreatedAt: now}, 0); err != nil {
		log.Warn("bulk preview not cached", zap.Error(err))
		return
	}
	expires := now.Add(s.cache.TTL())
	report.PreviewID = id
	report.ExpiresAt = &expires
}
