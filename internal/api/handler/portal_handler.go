package handler

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yuckyman/url-portal/internal/dispatch"
)

// PortalTemplate is the name of the portal landing page template
const PortalTemplate = "portal.html"

//go:embed templates/*.html
var templateFS embed.FS

// Templates parses the HTML templates served by the handlers
func Templates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}

// PortalPage handles GET /wm/p/:portal_id
// Renders a page that fires the signed trigger from the browser and follows the job
func (h *JobHandler) PortalPage(c *gin.Context) {
	key := c.Param("portal_id")

	if err := dispatch.ValidateKey(key); err != nil {
		h.logger.Warn("Invalid portal ID format", slog.String("dispatch_key", key))
		respondInvalidKey(c)
		return
	}

	portal, ok := h.lookupPortal(c, key)
	if !ok {
		return
	}

	payload := map[string]any{"portal_id": key}
	if h.dispatcher.SigningEnabled() {
		ts := h.dispatcher.Now().Unix()
		payload["timestamp"] = ts
		payload["signature"] = h.dispatcher.Sign(key, ts)
	}

	h.logger.Info("Portal requested",
		slog.String("dispatch_key", key),
		slog.String("action", portal.Action),
	)

	c.HTML(http.StatusOK, PortalTemplate, gin.H{
		"PortalID": key,
		"Label":    portal.Label,
		"Payload":  payload,
	})
}
