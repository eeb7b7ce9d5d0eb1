package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/solfortune/custody-service/internal/domain/entities"
	apperrors "github.com/solfortune/custody-service/internal/domain/errors"
	"github.com/solfortune/custody-service/pkg/logger"
)

// getUserID extracts and validates user ID from context
func getUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated", nil)
		return uuid.Nil, false
	}

	switch v := userIDVal.(type) {
	case uuid.UUID:
		return v, true
	case string:
		parsed, err := uuid.Parse(v)
		if err != nil {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid user identity", nil)
			return uuid.Nil, false
		}
		return parsed, true
	default:
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid user identity", nil)
		return uuid.Nil, false
	}
}

// parseIntParam parses a query parameter to int with default value
func parseIntParam(c *gin.Context, param string, defaultVal int) int {
	if val := c.Query(param); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

// respondError sends a standardized error response
func respondError(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	c.JSON(status, entities.ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// respondSuccess sends a success response with data
func respondSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// respondCreated sends a created response with data
func respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// respondDomainError maps a domain error onto the HTTP surface. Anything
// unclassified is logged and returned as an opaque 500.
func respondDomainError(c *gin.Context, log *logger.Logger, err error) {
	code := apperrors.GetErrorCode(err)

	switch {
	case apperrors.IsNotFound(err):
		respondError(c, http.StatusNotFound, code, err.Error(), nil)
	case apperrors.IsConflict(err):
		respondError(c, http.StatusConflict, code, err.Error(), nil)
	case apperrors.IsInvalidInput(err):
		respondError(c, http.StatusBadRequest, code, err.Error(), nil)
	case apperrors.IsInsufficientFunds(err):
		respondError(c, http.StatusBadRequest, code, err.Error(), nil)
	case apperrors.IsNotConfigured(err):
		respondError(c, http.StatusServiceUnavailable, code, err.Error(), nil)
	case apperrors.IsChainUnavailable(err), apperrors.IsPriceUnavailable(err):
		respondError(c, http.StatusServiceUnavailable, code, err.Error(), nil)
	case errors.Is(err, apperrors.ErrServiceUnavailable):
		respondError(c, http.StatusServiceUnavailable, code, err.Error(), nil)
	default:
		log.Error("Unhandled error in request",
			"request_id", c.GetString("request_id"),
			"path", c.Request.URL.Path,
			"error", err,
		)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", nil)
	}
}
