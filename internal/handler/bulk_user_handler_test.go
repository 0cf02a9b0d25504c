package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/dto"
	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/middleware"
	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/models"
	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/service"
	appErrors "github.com/jromanv/portal-liceo-tecpan-sub000/pkg/errors"
)

type bulkServiceMock struct {
	report      *dto.BulkValidationReport
	validateErr error
	upload      service.BulkUpload

	result     *dto.ProvisioningResult
	provErr    error
	rows       []dto.NormalizedRow
	previewID  string
	actor      service.ProvisioningActor
	resultErr  error
	exportFmt  string
	exportFile *service.ExportFile
}

func (m *bulkServiceMock) Validate(ctx context.Context, upload service.BulkUpload) (*dto.BulkValidationReport, error) {
	m.upload = upload
	return m.report, m.validateErr
}

func (m *bulkServiceMock) Provision(ctx context.Context, rows []dto.NormalizedRow, actor service.ProvisioningActor) (*dto.ProvisioningResult, error) {
	m.rows = rows
	m.actor = actor
	return m.result, m.provErr
}

func (m *bulkServiceMock) ProvisionPreview(ctx context.Context, previewID string, actor service.ProvisioningActor) (*dto.ProvisioningResult, error) {
	m.previewID = previewID
	m.actor = actor
	return m.result, m.provErr
}

func (m *bulkServiceMock) Result(ctx context.Context, batchID string) (*dto.ProvisioningResult, error) {
	return m.result, m.resultErr
}

func (m *bulkServiceMock) RejectedRows(report *dto.BulkValidationReport) (*service.ExportFile, error) {
	return m.exportFile, nil
}

func (m *bulkServiceMock) BatchReport(result *dto.ProvisioningResult, format string) (*service.ExportFile, error) {
	m.exportFmt = format
	return m.exportFile, nil
}

func newBulkHandler(m *bulkServiceMock, maxUpload int64) *BulkUserHandler {
	return NewBulkUserHandler(m, m, m, maxUpload)
}

func multipartRequest(t *testing.T, target, filename, content string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

func TestBulkValidateReturnsReport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := &bulkServiceMock{report: &dto.BulkValidationReport{Filename: "carga.csv", Total: 2, Valid: 1, Invalid: 1, PreviewID: "p1"}}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = multipartRequest(t, "/users/bulk/validate", "carga.csv", "email,password\n")

	newBulkHandler(m, 1024).Validate(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "carga.csv", m.upload.Filename)
	assert.Equal(t, "email,password\n", string(m.upload.Content))
	envelope := decodeEnvelope(t, w)
	assert.Equal(t, "p1", envelope["data"].(map[string]interface{})["preview_id"])
	assert.Equal(t, true, envelope["meta"].(map[string]interface{})["preview_cached"])
}

func TestBulkValidateRejectedRowsDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := &bulkServiceMock{
		report:     &dto.BulkValidationReport{Filename: "carga.csv"},
		exportFile: &service.ExportFile{Filename: "rechazados_carga.csv", ContentType: "text/csv; charset=utf-8", Body: []byte("line,email,errors\n")},
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = multipartRequest(t, "/users/bulk/validate?format=csv", "carga.csv", "x")

	newBulkHandler(m, 1024).Validate(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "rechazados_carga.csv")
	assert.Equal(t, "line,email,errors\n", w.Body.String())
}

func TestBulkValidateUploadErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = multipartRequest(t, "/users/bulk/validate", "carga.csv", strings.Repeat("a", 2048))
	newBulkHandler(&bulkServiceMock{}, 1024).Validate(c)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = multipartRequest(t, "/users/bulk/validate", "", "")
	newBulkHandler(&bulkServiceMock{}, 1024).Validate(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = multipartRequest(t, "/users/bulk/validate", "carga.pdf", "x")
	newBulkHandler(&bulkServiceMock{validateErr: appErrors.ErrUnsupportedFile}, 1024).Validate(c)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func provisionContext(t *testing.T, body string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodPost, "/users/bulk/provision", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "portal-admin")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "dir-1", Role: models.RoleDirector})
	return c, w
}

func TestBulkProvisionStatusCodes(t *testing.T) {
	body := `{"rows":[{"line":2,"email":"ana@liceotecpan.edu.gt","password":"secreto","rol":"student","nombre":"Ana","apellido":"Ruiz","codigo_personal":"E-1","plan":"diario"}]}`

	m := &bulkServiceMock{result: &dto.ProvisioningResult{Total: 1, Created: 1, Message: "1 of 1 users created"}}
	c, w := provisionContext(t, body)
	newBulkHandler(m, 0).Provision(c)
	assert.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, m.rows, 1)
	assert.Equal(t, models.RoleStudent, m.rows[0].Role)
	assert.Equal(t, "dir-1", m.actor.UserID)
	assert.Equal(t, "portal-admin", m.actor.UserAgent)

	m = &bulkServiceMock{result: &dto.ProvisioningResult{Total: 1, Created: 0, Message: "0 of 1 users created"}}
	c, w = provisionContext(t, body)
	newBulkHandler(m, 0).Provision(c)
	assert.Equal(t, http.StatusOK, w.Code)

	m = &bulkServiceMock{provErr: appErrors.ErrProvisioningFailed}
	c, w = provisionContext(t, body)
	newBulkHandler(m, 0).Provision(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestBulkProvisionFromPreview(t *testing.T) {
	m := &bulkServiceMock{result: &dto.ProvisioningResult{Total: 3, Created: 3}}
	c, w := provisionContext(t, `{"preview_id":"p1"}`)
	newBulkHandler(m, 0).Provision(c)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "p1", m.previewID)
	assert.Nil(t, m.rows)
}

func TestBulkProvisionRejectsEmptyPayload(t *testing.T) {
	for _, body := range []string{`{}`, `invalid`} {
		c, w := provisionContext(t, body)
		newBulkHandler(&bulkServiceMock{}, 0).Provision(c)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestBulkBatchReport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := &bulkServiceMock{
		result:     &dto.ProvisioningResult{BatchID: "b1"},
		exportFile: &service.ExportFile{Filename: "lote_b1.pdf", ContentType: "application/pdf", Body: []byte("%PDF")},
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/users/bulk/batches/b1/report?format=pdf", nil)
	c.Params = gin.Params{{Key: "id", Value: "b1"}}

	newBulkHandler(m, 0).BatchReport(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pdf", m.exportFmt)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/users/bulk/batches/zz", nil)
	c.Params = gin.Params{{Key: "id", Value: "zz"}}
	newBulkHandler(&bulkServiceMock{resultErr: appErrors.ErrNotFound}, 0).Batch(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReadyReportsFailingDependency(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewMetricsHandler(nil, map[string]ReadinessCheck{
		"postgres": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return assert.AnError },
	})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)

	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"postgres":"ok"`)
}
