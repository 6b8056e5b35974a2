package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/leadfoundry/lf-ingestor/internal/cache"
	"github.com/leadfoundry/lf-ingestor/internal/domain"
	"github.com/leadfoundry/lf-ingestor/internal/ingest"
	"github.com/leadfoundry/lf-ingestor/internal/store"
	"github.com/leadfoundry/lf-ingestor/internal/store/schema"
	"github.com/leadfoundry/lf-ingestor/internal/webhook"
)

// IdempotencyKeyHeader carries the client's deduplication token.
const IdempotencyKeyHeader = "Idempotency-Key"

// maxBodyBytes caps inbound request bodies.
const maxBodyBytes = 1 << 20 // 1 MiB

// Handler defines the interface for REST API handlers
// This interface allows for easy mocking and testing
//
//go:generate mockgen -source=handler.go -destination=../../mocks/api_handler.go -package=mocks -mock_names=Handler=MockAPIHandler
type Handler interface {
	// SubmitLead ingests a lead submission exactly once per Idempotency-Key
	// POST /leads
	SubmitLead(c *gin.Context)

	// GetLead retrieves a single lead by its numeric ID
	// GET /leads/:id
	GetLead(c *gin.Context)

	// HandleCRMWebhook applies a signed status update from the CRM
	// POST /webhook/crm
	HandleCRMWebhook(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	coordinator   *ingest.Coordinator
	reader        *cache.LeadReader
	store         store.Store
	webhookSecret string
}

// NewHandler creates a new REST API handler
func NewHandler(coordinator *ingest.Coordinator, reader *cache.LeadReader, st store.Store, webhookSecret string) Handler {
	return &handler{
		coordinator:   coordinator,
		reader:        reader,
		store:         st,
		webhookSecret: webhookSecret,
	}
}

// crmWebhookPayload is the inbound CRM status update body
type crmWebhookPayload struct {
	LeadID uint64 `json:"lead_id"`
	Status string `json:"status"`
}

// SubmitLead ingests a lead submission exactly once per Idempotency-Key
func (h *handler) SubmitLead(c *gin.Context) {
	token := c.GetHeader(IdempotencyKeyHeader)

	var body domain.LeadSubmission
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}

	result, err := h.coordinator.Submit(c.Request.Context(), token, c.ClientIP(), body)
	if err != nil {
		h.respondSubmitError(c, err)
		return
	}

	switch result.Outcome {
	case domain.OutcomeCreated:
		c.Data(http.StatusCreated, "application/json", result.Response)
	case domain.OutcomeReplayed:
		c.Data(http.StatusOK, "application/json", result.Response)
	case domain.OutcomeInProgress:
		c.JSON(http.StatusAccepted, gin.H{
			"status": "processing",
		})
	default:
		respondInternalError(c, errors.New("unknown submission outcome"), "Internal server error",
			zap.String("outcome", string(result.Outcome)),
		)
	}
}

// respondSubmitError maps coordinator errors to HTTP responses
func (h *handler) respondSubmitError(c *gin.Context, err error) {
	var validationErr *domain.ValidationError

	switch {
	case errors.Is(err, domain.ErrRateLimitExceeded):
		respondRateLimited(c)
	case errors.Is(err, domain.ErrMissingIdempotencyKey):
		respondBadRequest(c, "Idempotency-Key header is required")
	case errors.Is(err, domain.ErrFingerprintMismatch):
		respondConflict(c, "Idempotency-Key was already used with a different request body")
	case errors.Is(err, domain.ErrClaimConflict):
		respondConflict(c, "Request is being processed by a concurrent attempt")
	case errors.As(err, &validationErr):
		respondValidationError(c, validationErr.Error())
	default:
		respondInternalError(c, err, "Internal server error")
	}
}

// GetLead retrieves a single lead by its numeric ID
func (h *handler) GetLead(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondBadRequest(c, "Invalid lead ID")
		return
	}

	lead, err := h.reader.GetLead(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrLeadNotFound) {
			respondNotFound(c, "Lead not found")
			return
		}
		respondInternalError(c, err, "Failed to fetch lead", zap.Uint64("lead_id", id))
		return
	}

	c.JSON(http.StatusOK, domain.LeadResponse{
		ID:     lead.ID,
		Email:  lead.Email,
		Phone:  lead.Phone,
		Name:   lead.Name,
		Source: lead.Source,
		Status: string(lead.Status),
	})
}

// HandleCRMWebhook applies a signed status update from the CRM
func (h *handler) HandleCRMWebhook(c *gin.Context) {
	signature := c.GetHeader(webhook.SignatureHeader)
	if signature == "" {
		respondUnauthorized(c, "Missing signature")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		respondBadRequest(c, "Failed to read request body")
		return
	}

	// Verify against the raw bytes before parsing anything
	if !webhook.Verify(h.webhookSecret, payload, signature) {
		respondForbidden(c, "Invalid signature")
		return
	}

	var update crmWebhookPayload
	if err := json.Unmarshal(payload, &update); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	if update.LeadID == 0 || update.Status == "" {
		respondValidationError(c, "lead_id and status are required")
		return
	}

	err = h.store.ApplyWebhookStatus(c.Request.Context(), update.LeadID, schema.LeadStatus(update.Status), payload)
	if err != nil {
		if errors.Is(err, domain.ErrLeadNotFound) {
			respondNotFound(c, "Lead not found")
			return
		}
		respondInternalError(c, err, "Failed to apply status update", zap.Uint64("lead_id", update.LeadID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}
