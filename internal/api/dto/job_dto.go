package dto

// TriggerRequest is the body of POST /wm/hooks/portal. Timestamp is left
// untyped so both JSON numbers and numeric strings are accepted.
type TriggerRequest struct {
	DispatchKey string `json:"dispatch_key"`
	PortalID    string `json:"portal_id"`
	Timestamp   any    `json:"timestamp"`
	Signature   string `json:"signature"`
}

// Key returns the dispatch key, falling back to portal_id
func (r *TriggerRequest) Key() string {
	if r.DispatchKey != "" {
		return r.DispatchKey
	}
	return r.PortalID
}

type TriggerResponse struct {
	JobDTO
	PortalID   string `json:"portal_id"`
	AcceptedAt string `json:"accepted_at"`
	Message    string `json:"message,omitempty"`
}

type ListJobsRequest struct {
	DispatchKey string `form:"dispatch_key"`
	Status      string `form:"status"`
	PageSize    int    `form:"page_size"`
	Cursor      string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID       string         `json:"job_id"`
	DispatchKey string         `json:"dispatch_key"`
	Action      string         `json:"action"`
	Status      string         `json:"status"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

type Endpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

// PortalEntry describes one configured portal in the endpoints listing
type PortalEntry struct {
	Key    string `json:"key"`
	Action string `json:"action"`
	Label  string `json:"label,omitempty"`
	Path   string `json:"path"`
}
