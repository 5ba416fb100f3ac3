package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/songcraft/backend/internal/services"
	"github.com/songcraft/backend/internal/services/gateway"
	"github.com/songcraft/backend/pkg/response"
)

// respondError maps service-layer errors onto the API error envelope.
// Conflicts are retryable after a re-fetch; gateway outages are retryable
// as-is; everything else is a terminal rejection.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrProjectNotFound),
		errors.Is(err, services.ErrRevisionNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, services.ErrUnauthorized),
		errors.Is(err, services.ErrProducerBlocked):
		response.Forbidden(c, err.Error())
	case errors.Is(err, services.ErrStateConflict),
		errors.Is(err, services.ErrAcceptanceWindowExpired),
		errors.Is(err, services.ErrRevisionOutstanding),
		errors.Is(err, services.ErrNoRevisionsRemaining),
		errors.Is(err, services.ErrFeedbackAlreadySubmitted):
		response.Error(c, response.NewConflict(err.Error()))
	case errors.Is(err, gateway.ErrUnavailable):
		response.Error(c, response.NewServiceUnavailable("payment gateway unavailable, try again"))
	case errors.Is(err, gateway.ErrRejected):
		response.BadRequest(c, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}
