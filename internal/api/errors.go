package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/iancossa/attendance-fullstack/internal/alert"
	"github.com/iancossa/attendance-fullstack/internal/attendance"
	"github.com/iancossa/attendance-fullstack/internal/catalog"
	"github.com/iancossa/attendance-fullstack/internal/justification"
	"github.com/iancossa/attendance-fullstack/internal/logging"
	"github.com/iancossa/attendance-fullstack/internal/validation"
)

var errForbidden = errors.New("forbidden")

type statusRule struct {
	err    error
	status int
}

// first match wins, so specific causes come before their wrappers
var statusRules = []statusRule{
	{errForbidden, http.StatusForbidden},
	{justification.ErrFormNotFound, http.StatusNotFound},
	{justification.ErrSubmitInFlight, http.StatusConflict},
	{justification.ErrAlreadySubmitted, http.StatusConflict},
	{justification.ErrFormClosed, http.StatusGone},
	{justification.ErrNoDocument, http.StatusBadRequest},
	{attendance.ErrTargetNotFound, http.StatusNotFound},
	{attendance.ErrStudentNotFound, http.StatusNotFound},
	{attendance.ErrJustificationNotFound, http.StatusNotFound},
	{attendance.ErrNoStudent, http.StatusForbidden},
	{attendance.ErrAlreadyReviewed, http.StatusConflict},
	{attendance.ErrNotAbsent, http.StatusConflict},
	{attendance.ErrAlreadyPending, http.StatusConflict},
	{attendance.ErrUnknownStatus, http.StatusBadRequest},
	{alert.ErrUnknownChannel, http.StatusBadRequest},
	{alert.ErrPlaceholderRecipient, http.StatusUnprocessableEntity},
	{alert.ErrNoRecipient, http.StatusUnprocessableEntity},
	{alert.ErrNoSender, http.StatusServiceUnavailable},
	{catalog.ErrUnknownKind, http.StatusNotFound},
	{catalog.ErrInvalidPayload, http.StatusBadRequest},
	{catalog.ErrDuplicate, http.StatusConflict},
}

func toHTTPStatus(err error) int {
	if _, ok := validation.As(err); ok {
		return http.StatusBadRequest
	}
	for _, r := range statusRules {
		if errors.Is(err, r.err) {
			return r.status
		}
	}
	var serr *justification.SubmissionError
	if errors.As(err, &serr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError writes the JSON error body for err.
func respondError(c *gin.Context, logger logging.Logger, err error) {
	status := toHTTPStatus(err)
	if verr, ok := validation.As(err); ok {
		c.AbortWithStatusJSON(status, gin.H{"error": verr.Error(), "errors": verr.Map()})
		return
	}
	msg := err.Error()
	switch {
	case status == http.StatusBadGateway:
		msg = "justification could not be submitted, please retry"
	case status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable:
		logger.Error("request failed", err, map[string]interface{}{"path": c.FullPath(), "method": c.Request.Method})
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
