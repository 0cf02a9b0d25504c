package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/dto"
	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/middleware"
	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/service"
	appErrors "github.com/jromanv/portal-liceo-tecpan-sub000/pkg/errors"
	"github.com/jromanv/portal-liceo-tecpan-sub000/pkg/response"
)

// multipartOverhead leaves room for boundaries and part headers around the file.
const multipartOverhead = 64 * 1024

type bulkValidator interface {
	Validate(ctx context.Context, upload service.BulkUpload) (*dto.BulkValidationReport, error)
}

type bulkProvisioner interface {
	Provision(ctx context.Context, rows []dto.NormalizedRow, actor service.ProvisioningActor) (*dto.ProvisioningResult, error)
	ProvisionPreview(ctx context.Context, previewID string, actor service.ProvisioningActor) (*dto.ProvisioningResult, error)
	Result(ctx context.Context, batchID string) (*dto.ProvisioningResult, error)
}

type bulkExporter interface {
	RejectedRows(report *dto.BulkValidationReport) (*service.ExportFile, error)
	BatchReport(result *dto.ProvisioningResult, format string) (*service.ExportFile, error)
}

// BulkUserHandler exposes the bulk user upload endpoints.
type BulkUserHandler struct {
	validator   bulkValidator
	provisioner bulkProvisioner
	exporter    bulkExporter
	maxUpload   int64
}

// NewBulkUserHandler constructs a BulkUserHandler accepting uploads up to maxUpload bytes.
func NewBulkUserHandler(validator bulkValidator, provisioner bulkProvisioner, exporter bulkExporter, maxUpload int64) *BulkUserHandler {
	return &BulkUserHandler{validator: validator, provisioner: provisioner, exporter: exporter, maxUpload: maxUpload}
}

// Validate godoc
// @Summary Validate a bulk user file
// @Description Parse a CSV or XLSX upload and classify every row as valid or rejected. Nothing is saved.
// @Tags Bulk Users
// @Accept mpfd
// @Produce json
// @Param file formData file true "CSV or XLSX file"
// @Param format query string false "Set to csv to download the rejected rows"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 415 {object} response.Envelope
// @Router /users/bulk/validate [post]
func (h *BulkUserHandler) Validate(c *gin.Context) {
	upload, err := h.readUpload(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	report, err := h.validator.Validate(c.Request.Context(), *upload)
	if err != nil {
		response.Error(c, err)
		return
	}

	if c.Query("format") == service.ExportFormatCSV {
		file, err := h.exporter.RejectedRows(report)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Attachment(c, file.Filename, file.ContentType, file.Body)
		return
	}

	middleware.SetMeta(c, "preview_cached", report.PreviewID != "")
	response.JSON(c, http.StatusOK, report, middleware.ExtractMeta(c))
}

// Provision godoc
// @Summary Provision validated users
// @Description Create accounts for the submitted rows, or for a cached preview. Each row succeeds or fails on its own.
// @Tags Bulk Users
// @Accept json
// @Produce json
// @Param payload body dto.ProvisionRequest true "Rows or preview id"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /users/bulk/provision [post]
func (h *BulkUserHandler) Provision(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.ProvisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	actor := service.ProvisioningActor{UserID: claims.UserID, IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	var (
		result *dto.ProvisioningResult
		err    error
	)
	switch {
	case req.PreviewID != "":
		result, err = h.provisioner.ProvisionPreview(c.Request.Context(), req.PreviewID, actor)
	case len(req.Rows) > 0:
		result, err = h.provisioner.Provision(c.Request.Context(), req.Rows, actor)
	default:
		err = appErrors.Clone(appErrors.ErrValidation, "rows or preview_id is required")
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	if result.Created > 0 {
		response.Created(c, result)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Batch godoc
// @Summary Get a provisioning batch
// @Tags Bulk Users
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/bulk/batches/{id} [get]
func (h *BulkUserHandler) Batch(c *gin.Context) {
	result, err := h.provisioner.Result(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// BatchReport godoc
// @Summary Download a provisioning batch report
// @Tags Bulk Users
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Batch ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /users/bulk/batches/{id}/report [get]
func (h *BulkUserHandler) BatchReport(c *gin.Context) {
	result, err := h.provisioner.Result(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exporter.BatchReport(result, c.DefaultQuery("format", service.ExportFormatCSV))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

func (h *BulkUserHandler) readUpload(c *gin.Context) (*service.BulkUpload, error) {
	tooLarge := appErrors.Clone(appErrors.ErrFileTooLarge, fmt.Sprintf("file exceeds the upload limit of %d bytes", h.maxUpload))
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			return nil, tooLarge
		}
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required")
	}
	if h.maxUpload > 0 && header.Size > h.maxUpload {
		return nil, tooLarge
	}

	file, err := header.Open()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open upload")
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload")
	}
	return &service.BulkUpload{Filename: header.Filename, Content: content}, nil
}
