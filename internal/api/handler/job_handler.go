package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/yuckyman/url-portal/internal/api/dto"
	"github.com/yuckyman/url-portal/internal/catalog"
	"github.com/yuckyman/url-portal/internal/dispatch"
	"github.com/yuckyman/url-portal/internal/jobstore"
	"github.com/yuckyman/url-portal/internal/portal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func respondError(c *gin.Context, status int, title, message string) {
	c.JSON(status, gin.H{
		"error":   title,
		"message": message,
	})
}

// Trigger handles POST /wm/hooks/portal
// Authenticates the trigger, resolves its portal and enqueues the action
func (h *JobHandler) Trigger(c *gin.Context) {
	var req dto.TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		respondError(c, http.StatusBadRequest, "Invalid request", "Request body must be JSON")
		return
	}

	key := req.Key()
	if key == "" {
		respondError(c, http.StatusBadRequest, "Invalid request", "Missing portal_id")
		return
	}

	// A malformed key is reported ahead of a malformed timestamp.
	timestamp, tsErr := parseTimestamp(req.Timestamp)
	if tsErr != nil && dispatch.ValidateKey(key) == nil {
		respondError(c, http.StatusBadRequest, "Invalid signature timestamp", "timestamp must be an integer")
		return
	}

	if err := h.dispatcher.Authenticate(key, timestamp, req.Signature); err != nil {
		if errors.Is(err, domain.ErrInvalidKey) {
			respondInvalidKey(c)
			return
		}
		respondError(c, http.StatusUnauthorized, "Unauthorized", domain.UnauthorizedReason(err))
		return
	}

	portal, ok := h.lookupPortal(c, key)
	if !ok {
		return
	}

	rec, err := h.dispatcher.Enqueue(c.Request.Context(), dispatch.Trigger{
		DispatchKey: key,
		Action:      portal.Action,
		Payload: map[string]any{
			"portal_id": key,
			"action":    portal.Action,
			"config":    portal.Config,
		},
	})
	if err != nil {
		h.logger.Error("Failed to enqueue job",
			slog.String("dispatch_key", key),
			slog.String("error", err.Error()),
		)
		respondError(c, http.StatusInternalServerError, "Internal server error", "Failed to enqueue job")
		return
	}

	resp := dto.TriggerResponse{
		JobDTO:     toJobDTO(rec),
		PortalID:   key,
		AcceptedAt: formatTime(h.dispatcher.Now()),
	}
	if rec.Status == domain.JobStatusDeduped {
		resp.Message = "Duplicate request ignored"
	}

	c.JSON(http.StatusAccepted, resp)
}

// lookupPortal resolves key and writes the error response when it cannot
func (h *JobHandler) lookupPortal(c *gin.Context, key string) (catalog.Portal, bool) {
	portal, err := h.catalog.Lookup(key)
	switch {
	case err == nil:
		return portal, true
	case errors.Is(err, domain.ErrPortalNotFound):
		h.logger.Warn("Portal not found", slog.String("dispatch_key", key))
		respondError(c, http.StatusNotFound, "Portal not found",
			fmt.Sprintf("No configuration found for portal ID: %s", key))
	case errors.Is(err, domain.ErrCatalogUnavailable):
		h.logger.Error("Portal catalog unavailable",
			slog.String("dispatch_key", key),
			slog.String("error", err.Error()),
		)
		respondError(c, http.StatusInternalServerError, "Configuration error", "Portal catalog is unavailable")
	default:
		h.logger.Error("Failed to resolve portal",
			slog.String("dispatch_key", key),
			slog.String("error", err.Error()),
		)
		respondError(c, http.StatusInternalServerError, "Internal server error", "Failed to resolve portal")
	}
	return catalog.Portal{}, false
}

func respondInvalidKey(c *gin.Context) {
	respondError(c, http.StatusBadRequest, "Invalid portal ID format",
		fmt.Sprintf("Portal ID must be %d-%d lowercase alphanumeric characters", domain.MinKeyLength, domain.MaxKeyLength))
}

// parseTimestamp accepts an integral JSON number or a decimal string. A nil
// input yields a nil timestamp.
func parseTimestamp(raw any) (*int64, error) {
	var ts int64
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > math.MaxInt64/2 {
			return nil, fmt.Errorf("timestamp %v is not an integer", v)
		}
		ts = int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return nil, err
		}
		ts = n
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, err
		}
		ts = n
	default:
		return nil, fmt.Errorf("timestamp has type %T", raw)
	}
	return &ts, nil
}

// GetJob handles GET /wm/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	rec, err := h.store.Get(jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			respondError(c, http.StatusNotFound, "Job not found",
				fmt.Sprintf("No job found with id %s", jobID))
			return
		}
		h.logger.Error("Failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		respondError(c, http.StatusInternalServerError, "Internal server error", "Failed to get job")
		return
	}

	c.JSON(http.StatusOK, toJobDTO(rec))
}

// ListJobs handles GET /wm/jobs
// Lists jobs newest first with optional filtering and cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		respondError(c, http.StatusBadRequest, "Invalid request", "Invalid query parameters")
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}

	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	switch req.Status {
	case "", domain.JobStatusQueued, domain.JobStatusInProgress, domain.JobStatusSucceeded, domain.JobStatusFailed:
	default:
		respondError(c, http.StatusBadRequest, "Invalid request",
			fmt.Sprintf("Unknown status: %s", req.Status))
		return
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		respondError(c, http.StatusBadRequest, "Invalid request", "Invalid cursor")
		return
	}

	jobs := h.store.List(jobstore.Filter{
		DispatchKey: req.DispatchKey,
		Status:      req.Status,
		PageSize:    req.PageSize,
		Cursor:      cursor,
	})

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i, job := range jobs {
		jobResponse[i] = toJobDTO(job)
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(jobstore.Cursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

// Endpoints handles GET /wm/endpoints
func (h *JobHandler) Endpoints(c *gin.Context) {
	body := gin.H{
		"endpoints": []dto.Endpoint{
			{Method: http.MethodGet, Path: "/wm/p/:portal_id", Description: "Portal page that triggers the portal action and follows its job."},
			{Method: http.MethodPost, Path: "/wm/hooks/portal", Description: "Webhook endpoint to enqueue portal actions."},
			{Method: http.MethodGet, Path: "/wm/jobs", Description: "List recent jobs."},
			{Method: http.MethodGet, Path: "/wm/jobs/:job_id", Description: "Fetch webhook job status."},
			{Method: http.MethodGet, Path: "/wm/endpoints", Description: "List available endpoints."},
			{Method: http.MethodGet, Path: "/health", Description: "Health check."},
			{Method: http.MethodGet, Path: "/metrics", Description: "Prometheus metrics."},
		},
	}

	// an unreadable catalog only drops the portal listing
	portals, err := h.catalog.List()
	if err != nil {
		h.logger.Warn("Failed to list portals",
			slog.String("error", err.Error()),
		)
	} else {
		entries := make([]dto.PortalEntry, 0, len(portals))
		for _, p := range portals {
			entries = append(entries, dto.PortalEntry{
				Key:    p.Key,
				Action: p.Action,
				Label:  p.Label,
				Path:   "/wm/p/" + p.Key,
			})
		}
		body["portals"] = entries
	}

	c.JSON(http.StatusOK, body)
}
