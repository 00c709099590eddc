package handler

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/kursadbilgin/absence-notifier/internal/domain"
	"github.com/kursadbilgin/absence-notifier/internal/observability"
	"github.com/kursadbilgin/absence-notifier/internal/service"
	"go.uber.org/zap"
)

const (
	uploadField = "file"

	errNoFilePart     = "No file part"
	errNoSelectedFile = "No selected file"
)

type AttendanceService interface {
	Process(ctx context.Context, path string) (*service.Report, error)
	GetBatch(ctx context.Context, batchID string) (*service.BatchDetails, error)
}

type AttendanceHandler struct {
	service   AttendanceService
	uploadDir string
	logger    *zap.Logger
}

func NewAttendanceHandler(service AttendanceService, uploadDir string, logger *zap.Logger) (*AttendanceHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("attendance service is required")
	}
	if strings.TrimSpace(uploadDir) == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if err := os.MkdirAll(uploadDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AttendanceHandler{
		service:   service,
		uploadDir: uploadDir,
		logger:    logger,
	}, nil
}

func RegisterAttendanceRoutes(router fiber.Router, service AttendanceService, uploadDir string, logger *zap.Logger) error {
	h, err := NewAttendanceHandler(service, uploadDir, logger)
	if err != nil {
		return err
	}

	api := router.Group("/api")
	api.Post("/send-attendance-mails", h.SendAttendanceMails)
	api.Get("/dispatches/:batchId", h.GetDispatch)

	return nil
}

type sendAttendanceMailsResponse struct {
	Message string                    `json:"message"`
	BatchID string                    `json:"batchId"`
	Status  string                    `json:"status"`
	Sent    int                       `json:"sent"`
	Failed  []service.FailedRecipient `json:"failed"`
}

type dispatchResponse struct {
	BatchID     string            `json:"batchId"`
	FileName    string            `json:"fileName"`
	SessionName string            `json:"sessionName"`
	Status      string            `json:"status"`
	Summary     string            `json:"summary"`
	TotalCount  int               `json:"totalCount"`
	SentCount   int               `json:"sentCount"`
	FailedCount int               `json:"failedCount"`
	CreatedAt   time.Time         `json:"createdAt"`
	Attempts    []attemptResponse `json:"attempts"`
}

type attemptResponse struct {
	Recipient    string    `json:"recipient"`
	StudentName  string    `json:"studentName"`
	AbsenceDates []string  `json:"absenceDates"`
	Status       string    `json:"status"`
	Error        *string   `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// SendAttendanceMails stores the uploaded export, runs the pipeline on it and
// removes the stored copy whatever the outcome.
func (h *AttendanceHandler) SendAttendanceMails(c *fiber.Ctx) error {
	fileHeader, err := uploadedFile(c)
	if err != nil {
		return err
	}

	path := filepath.Join(h.uploadDir, storedFileName(fileHeader.Filename))
	if err := c.SaveFile(fileHeader, path); err != nil {
		return fmt.Errorf("failed to store upload: %w", err)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			h.logger.Warn("failed to remove upload", zap.String("path", path), zap.Error(err))
		}
	}()

	ctx := c.UserContext()
	if requestID := requestCorrelationID(c); requestID != "" {
		ctx = observability.WithCorrelationID(ctx, requestID)
	}

	report, err := h.service.Process(ctx, path)
	if err != nil {
		return toHTTPError(err)
	}

	failed := report.Failed
	if failed == nil {
		failed = []service.FailedRecipient{}
	}

	return c.Status(fiber.StatusOK).JSON(sendAttendanceMailsResponse{
		Message: report.Summary,
		BatchID: report.BatchID,
		Status:  report.Status.String(),
		Sent:    report.Sent,
		Failed:  failed,
	})
}

// GetDispatch returns a stored batch with its attempts, optionally filtered by ?status=SENT|FAILED.
func (h *AttendanceHandler) GetDispatch(c *fiber.Ctx) error {
	var statusFilter domain.Status
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status, err := domain.ParseStatusFromString(raw)
		if err != nil {
			return toHTTPError(err)
		}
		statusFilter = status
	}

	batchID := strings.TrimSpace(c.Params("batchId"))
	details, err := h.service.GetBatch(c.UserContext(), batchID)
	if err != nil {
		return toHTTPError(err)
	}

	batch := details.Batch
	attempts := make([]attemptResponse, 0, len(details.Attempts))
	for _, attempt := range details.Attempts {
		if statusFilter != "" && attempt.Status != statusFilter {
			continue
		}
		dates := attempt.AbsenceDates
		if dates == nil {
			dates = []string{}
		}
		attempts = append(attempts, attemptResponse{
			Recipient:    attempt.Recipient,
			StudentName:  attempt.StudentName,
			AbsenceDates: dates,
			Status:       attempt.Status.String(),
			Error:        attempt.Error,
			CreatedAt:    attempt.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(dispatchResponse{
		BatchID:     batch.ID,
		FileName:    batch.FileName,
		SessionName: batch.SessionName,
		Status:      batch.Status.String(),
		Summary:     batch.Summary,
		TotalCount:  batch.TotalCount,
		SentCount:   batch.SentCount,
		FailedCount: batch.FailedCount,
		CreatedAt:   batch.CreatedAt,
		Attempts:    attempts,
	})
}

// uploadedFile distinguishes a request without the file part from one whose
// file part has no filename (the browser's "nothing selected" case).
func uploadedFile(c *fiber.Ctx) (*multipart.FileHeader, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, errNoFilePart)
	}

	files := form.File[uploadField]
	if len(files) == 0 {
		if _, ok := form.Value[uploadField]; ok {
			return nil, fiber.NewError(fiber.StatusBadRequest, errNoSelectedFile)
		}
		return nil, fiber.NewError(fiber.StatusBadRequest, errNoFilePart)
	}

	fileHeader := files[0]
	if strings.TrimSpace(fileHeader.Filename) == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, errNoSelectedFile)
	}

	return fileHeader, nil
}

// storedFileName keeps the client's base name and extension behind a unique prefix.
func storedFileName(original string) string {
	base := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	if base == "." || base == "/" {
		base = "upload"
	}
	return uuid.NewString() + "-" + base
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "dispatch not found")
	default:
		return err
	}
}
