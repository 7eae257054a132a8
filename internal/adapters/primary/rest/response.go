package rest

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
)

const apiVersion = "v1"

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type meta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// envelope est la forme de toutes les réponses JSON
type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
	Meta    meta      `json:"meta"`
}

func success(data any) envelope {
	return envelope{Success: true, Data: data, Meta: meta{Timestamp: time.Now().UTC(), Version: apiVersion}}
}

func failure(code, message string) envelope {
	return envelope{Error: &apiError{Code: code, Message: message}, Meta: meta{Timestamp: time.Now().UTC(), Version: apiVersion}}
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, success(data))
}

// respondError traduit une erreur du domaine en réponse HTTP
func respondError(c *gin.Context, err error) {
	status, code, message := mapDomainError(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "Request failed",
			"method", c.Request.Method, "route", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, failure(code, message))
}

func mapDomainError(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidOperation):
		return http.StatusBadRequest, "INVALID_OPERATION", err.Error()
	case errors.Is(err, domain.ErrAlreadyFollowing):
		return http.StatusConflict, "ALREADY_FOLLOWING", domain.ErrAlreadyFollowing.Error()
	case errors.Is(err, domain.ErrNotFollowing):
		return http.StatusNotFound, "NOT_FOLLOWING", domain.ErrNotFollowing.Error()
	case errors.Is(err, domain.ErrAlreadyBlocked):
		return http.StatusConflict, "ALREADY_BLOCKED", domain.ErrAlreadyBlocked.Error()
	case errors.Is(err, domain.ErrNotBlocked):
		return http.StatusNotFound, "NOT_BLOCKED", domain.ErrNotBlocked.Error()
	case errors.Is(err, domain.ErrBlocked):
		return http.StatusForbidden, "BLOCKED", domain.ErrBlocked.Error()
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, "USER_NOT_FOUND", domain.ErrUserNotFound.Error()
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "identity service unavailable"
	default:
		// Erreur interne (DB down, etc.) -> ne pas fuiter les détails techniques
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}
