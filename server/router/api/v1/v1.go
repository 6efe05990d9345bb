package v1

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/semaphore"

	"github.com/hrygo/nfintake/internal/profile"
	"github.com/hrygo/nfintake/plugin/ai"
	"github.com/hrygo/nfintake/server/internal/observability"
	"github.com/hrygo/nfintake/server/middleware"
	"github.com/hrygo/nfintake/server/service/invoice"
	"github.com/hrygo/nfintake/server/service/semantic"
)

// QueryService answers semantic questions over recorded movements.
type QueryService interface {
	Answer(ctx context.Context, question string) (*semantic.Answer, error)
}

type APIV1Service struct {
	Profile        *profile.Profile
	InvoiceService invoice.Service
	// Extractor and QueryService are nil when AI is disabled.
	Extractor    ai.Extractor
	QueryService QueryService
	Metrics      *observability.Metrics

	// extractSemaphore limits concurrent PDF extractions to bound memory held by uploads.
	extractSemaphore *semaphore.Weighted
	aiLimiter        *middleware.RateLimiter
}

func NewAPIV1Service(profile *profile.Profile, invoiceService invoice.Service, extractor ai.Extractor, queryService QueryService) *APIV1Service {
	return &APIV1Service{
		Profile:          profile,
		InvoiceService:   invoiceService,
		Extractor:        extractor,
		QueryService:     queryService,
		Metrics:          observability.GlobalMetrics(),
		extractSemaphore: semaphore.NewWeighted(3),
		aiLimiter:        middleware.NewRateLimiter(middleware.DefaultRate, middleware.DefaultBurst),
	}
}

// RegisterRoutes registers the HTTP API with the given Echo instance.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", s.Health)

	api := e.Group("/api/v1")
	api.POST("/invoices/extract", s.observe("extract_invoice", s.ExtractInvoice), s.aiLimiter.Middleware())
	api.POST("/invoices/verify", s.observe("verify_invoice", s.VerifyInvoice))
	api.POST("/movements", s.observe("persist_movement", s.PersistMovement))
	api.GET("/movements/:id", s.observe("get_movement", s.GetMovement))
	api.POST("/semantic/query", s.observe("semantic_query", s.SemanticQuery), s.aiLimiter.Middleware())
	api.GET("/system/metrics", s.GetMetrics)
}

// Health reports liveness.
// GET /healthz
func (s *APIV1Service) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"message": "nfintake is running",
		"status":  "OK",
	})
}
