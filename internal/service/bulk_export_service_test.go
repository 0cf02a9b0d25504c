package service

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/dto"
	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/models"
	appErrors "github.com/jromanv/portal-liceo-tecpan-sub000/pkg/errors"
	"github.com/jromanv/portal-liceo-tecpan-sub000/pkg/export"
)

type recordingCSV struct {
	data export.Dataset
}

func (r *recordingCSV) Render(data export.Dataset) ([]byte, error) {
	r.data = data
	return []byte("csv"), nil
}

func TestRejectedRowsExport(t *testing.T) {
	csv := &recordingCSV{}
	svc := NewBulkExportService(csv, nil)
	report := &dto.BulkValidationReport{
		Filename: "carga enero.csv",
		Rejected: []dto.RejectedRow{{Line: 3, Email: "a@b.c", Messages: []string{"row 3: x", "row 3: y"}}},
	}

	file, err := svc.RejectedRows(report)
	require.NoError(t, err)
	assert.Equal(t, "rechazados_carga_enero.csv", file.Filename)
	assert.Equal(t, []string{"line", "email", "errors"}, csv.data.Headers)
	assert.Equal(t, "row 3: x; row 3: y", csv.data.Rows[0]["errors"])
}

func sampleResult() *dto.ProvisioningResult {
	return &dto.ProvisioningResult{
		BatchID:     "b-1",
		Message:     "1 of 2 users created",
		Total:       2,
		Created:     1,
		Success:     []dto.ProvisionedUser{{Line: 2, Email: "ana@liceotecpan.edu.gt", DisplayName: "Ana Muñoz", Role: models.RoleStudent, Enrolled: true}},
		Errors:      []dto.ProvisioningError{{Line: 3, Email: "luis@liceotecpan.edu.gt", Error: "email already exists"}},
		CompletedAt: time.Date(2026, 1, 12, 15, 30, 0, 0, time.UTC),
	}
}

func TestBatchReportCSV(t *testing.T) {
	csv := &recordingCSV{}
	file, err := NewBulkExportService(csv, nil).BatchReport(sampleResult(), "")
	require.NoError(t, err)
	assert.Equal(t, "lote_b-1.csv", file.Filename)
	require.Len(t, csv.data.Rows, 2)
	assert.Equal(t, OutcomeCreated, csv.data.Rows[0]["status"])
	assert.Equal(t, "enrolled", csv.data.Rows[0]["detail"])
	assert.Equal(t, OutcomeFailed, csv.data.Rows[1]["status"])
}

func TestBatchReportPDF(t *testing.T) {
	file, err := NewBulkExportService(nil, nil).BatchReport(sampleResult(), "PDF")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Body, []byte("%PDF")))
}

func TestBatchReportUnknownFormat(t *testing.T) {
	_, err := NewBulkExportService(nil, nil).BatchReport(sampleResult(), "xml")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
