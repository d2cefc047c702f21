package handler

import (
	"log/slog"
	"time"

	"github.com/yuckyman/url-portal/internal/api/dto"
	"github.com/yuckyman/url-portal/internal/catalog"
	"github.com/yuckyman/url-portal/internal/dispatch"
	"github.com/yuckyman/url-portal/internal/jobstore"
	"github.com/yuckyman/url-portal/internal/portal/domain"
)

// PortalCatalog resolves and lists portal definitions
type PortalCatalog interface {
	Lookup(key string) (catalog.Portal, error)
	List() ([]catalog.Portal, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger     *slog.Logger
	Dispatcher *dispatch.Dispatcher
	Store      *jobstore.Store
	Catalog    PortalCatalog
}

// JobHandler handles trigger and job status HTTP requests
type JobHandler struct {
	logger     *slog.Logger
	dispatcher *dispatch.Dispatcher
	store      *jobstore.Store
	catalog    PortalCatalog
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:     deps.Logger,
		dispatcher: deps.Dispatcher,
		store:      deps.Store,
		catalog:    deps.Catalog,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func toJobDTO(rec domain.JobStatusRecord) dto.JobDTO {
	return dto.JobDTO{
		JobID:       rec.JobID,
		DispatchKey: rec.DispatchKey,
		Action:      rec.Action,
		Status:      rec.Status,
		CreatedAt:   formatTime(rec.CreatedAt),
		UpdatedAt:   formatTime(rec.UpdatedAt),
		Result:      rec.Result,
		Error:       rec.Error,
	}
}
