package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/dto"
	appErrors "github.com/jromanv/portal-liceo-tecpan-sub000/pkg/errors"
	"github.com/jromanv/portal-liceo-tecpan-sub000/pkg/export"
)

// Export formats supported by the bulk endpoints.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string, summary ...string) ([]byte, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// BulkExportService renders validation and provisioning outcomes as downloadable files.
type BulkExportService struct {
	csv csvRenderer
	pdf pdfRenderer
}

// NewBulkExportService constructs a BulkExportService, defaulting the renderers.
func NewBulkExportService(csv csvRenderer, pdf pdfRenderer) *BulkExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &BulkExportService{csv: csv, pdf: pdf}
}

// RejectedRows renders the rejected rows of a validation report as CSV, one line per row.
func (s *BulkExportService) RejectedRows(report *dto.BulkValidationReport) (*ExportFile, error) {
	dataset := export.Dataset{Headers: []string{"line", "email", "errors"}}
	for _, r := range report.Rejected {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"line":   strconv.Itoa(r.Line),
			"email":  r.Email,
			"errors": strings.Join(r.Messages, "; "),
		})
	}
	body, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render rejected rows")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("rechazados_%s.csv", sanitizeFilename(strings.TrimSuffix(report.Filename, extOf(report.Filename)))),
		ContentType: "text/csv; charset=utf-8",
		Body:        body,
	}, nil
}

// BatchReport renders a provisioning outcome as CSV or PDF.
func (s *BulkExportService) BatchReport(result *dto.ProvisioningResult, format string) (*ExportFile, error) {
	dataset := export.Dataset{Headers: []string{"line", "email", "name", "role", "status", "detail"}}
	for _, u := range result.Success {
		detail := ""
		if u.Enrolled {
			detail = "enrolled"
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"line":   strconv.Itoa(u.Line),
			"email":  u.Email,
			"name":   u.DisplayName,
			"role":   string(u.Role),
			"status": OutcomeCreated,
			"detail": detail,
		})
	}
	for _, e := range result.Errors {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"line":   strconv.Itoa(e.Line),
			"email":  e.Email,
			"status": OutcomeFailed,
			"detail": e.Error,
		})
	}

	base := "lote_" + sanitizeFilename(result.BatchID)
	switch strings.ToLower(format) {
	case "", ExportFormatCSV:
		body, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render batch report")
		}
		return &ExportFile{Filename: base + ".csv", ContentType: "text/csv; charset=utf-8", Body: body}, nil
	case ExportFormatPDF:
		summary := []string{
			result.Message,
			fmt.Sprintf("Batch: %s", result.BatchID),
			fmt.Sprintf("Completed: %s", result.CompletedAt.Format("2006-01-02 15:04 MST")),
		}
		body, err := s.pdf.Render(dataset, "Carga masiva de usuarios", summary...)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render batch report")
		}
		return &ExportFile{Filename: base + ".pdf", ContentType: "application/pdf", Body: body}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", format))
	}
}

func extOf(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i:]
	}
	return ""
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "\"", "")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
