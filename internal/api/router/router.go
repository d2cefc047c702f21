package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yuckyman/url-portal/internal/api/handler"
	"github.com/yuckyman/url-portal/internal/config"
)

// ServiceName is reported by the health check
const ServiceName = "url-portal"

// Options holds router settings that are not handler dependencies
type Options struct {
	CORS     config.CORSConfig
	Gatherer prometheus.Gatherer
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) (*gin.Engine, error) {
	r := gin.New()

	tmpl, err := handler.Templates()
	if err != nil {
		return nil, err
	}
	r.SetHTMLTemplate(tmpl)

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware(opts.CORS))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": ServiceName,
		})
	})

	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	jobHandler := handler.NewJobHandler(deps)

	wm := r.Group("/wm")
	{
		// GET /wm/p/:portal_id - Portal landing page
		wm.GET("/p/:portal_id", jobHandler.PortalPage)

		// POST /wm/hooks/portal - Authenticated trigger
		wm.POST("/hooks/portal", jobHandler.Trigger)

		jobs := wm.Group("/jobs")
		{
			// GET /wm/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /wm/jobs/:job_id - Get job status
			jobs.GET("/:job_id", jobHandler.GetJob)
		}

		wm.GET("/endpoints", jobHandler.Endpoints)
	}

	return r, nil
}
