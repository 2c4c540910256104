package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/statuswatch/models"
)

// respondError maps an ExtractError to the correct HTTP status code and
// writes a structured JSON error response.
func respondError(c *gin.Context, err error) {
	var xe *models.ExtractError
	if !errors.As(err, &xe) {
		xe = models.NewExtractError(models.ErrCodeInternal, err.Error(), err)
	}
	c.JSON(mapErrorToStatus(xe.Code), models.ErrorResponse{
		Success: false,
		Error:   xe.ToDetail(),
	})
}

func invalidInput(c *gin.Context, err error) {
	respondError(c, models.NewExtractError(models.ErrCodeInvalidInput, err.Error(), err))
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(code string) int {
	switch code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation, models.ErrCodeAuthentication, models.ErrCodeBrowserCrash:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeBusy:
		return http.StatusConflict // 409
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	default:
		return http.StatusInternalServerError // 500
	}
}
