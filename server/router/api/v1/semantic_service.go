package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/hrygo/nfintake/server/internal/errors"
	"github.com/hrygo/nfintake/server/internal/observability"
)

// SemanticQueryRequest is the body of POST /api/v1/semantic/query.
type SemanticQueryRequest struct {
	Question string `json:"question"`
}

// SemanticQuery answers a free-text question over recorded movements.
// POST /api/v1/semantic/query
func (s *APIV1Service) SemanticQuery(c echo.Context, _ *observability.RequestContext) error {
	var req SemanticQueryRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validation(apperrors.StageValidateQuestion, "invalid request body")
	}
	if s.QueryService == nil {
		return apperrors.Upstream(apperrors.StageEmbedQuery, "semantic search is not configured", nil)
	}

	answer, err := s.QueryService.Answer(c.Request().Context(), req.Question)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, answer)
}
