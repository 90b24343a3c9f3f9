package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/billflow/billing"
	"github.com/yourusername/billflow/notify"
	"github.com/yourusername/billflow/numbering"
	"github.com/yourusername/billflow/workflow"
)

type apiError struct {
	status int
	code   string
}

// errorStatus maps domain errors to HTTP responses. Order matters: the
// first matching sentinel wins.
var errorStatus = []struct {
	target error
	apiError
}{
	{billing.ErrNotFound, apiError{http.StatusNotFound, "NotFound"}},
	{workflow.ErrNotFound, apiError{http.StatusNotFound, "NotFound"}},
	{notify.ErrNotificationMissing, apiError{http.StatusNotFound, "NotFound"}},
	{billing.ErrOverpayment, apiError{http.StatusUnprocessableEntity, "Overpayment"}},
	{billing.ErrSettlementUnverified, apiError{http.StatusUnprocessableEntity, "SettlementUnverified"}},
	{billing.ErrAlreadyInvoiced, apiError{http.StatusConflict, "AlreadyInvoiced"}},
	{billing.ErrDuplicateReference, apiError{http.StatusConflict, "DuplicateReference"}},
	{billing.ErrAuditLocked, apiError{http.StatusConflict, "AuditLocked"}},
	{billing.ErrIllegalTransition, apiError{http.StatusConflict, "IllegalTransition"}},
	{workflow.ErrIllegalTransition, apiError{http.StatusConflict, "IllegalTransition"}},
	{numbering.ErrCollision, apiError{http.StatusConflict, "NumberingCollision"}},
	{billing.ErrInvalidAmount, apiError{http.StatusBadRequest, "ValidationFailed"}},
	{billing.ErrInvalidLineItem, apiError{http.StatusBadRequest, "ValidationFailed"}},
	{billing.ErrInvalidInput, apiError{http.StatusBadRequest, "ValidationFailed"}},
	{workflow.ErrInvalidInput, apiError{http.StatusBadRequest, "ValidationFailed"}},
}

// respondError writes the error body for err. Unknown errors are logged and
// reported as a generic 500.
func respondError(c *gin.Context, log logrus.FieldLogger, err error) {
	for _, m := range errorStatus {
		if errors.Is(err, m.target) {
			c.JSON(m.status, gin.H{"error": err.Error(), "code": m.code})
			return
		}
	}
	log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "code": "InternalError"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "ValidationFailed"})
}

// idParam parses a positive numeric path parameter.
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name, "code": "ValidationFailed"})
		return 0, false
	}
	return uint(id), true
}
