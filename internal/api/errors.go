package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/facility-ops/riskwatch/internal/domain"
	"github.com/facility-ops/riskwatch/internal/middleware"
)

var statusByCode = map[string]int{
	domain.ErrInvalidInput:   http.StatusBadRequest,
	domain.ErrCodeNotFound:   http.StatusNotFound,
	domain.ErrCodeRule:       http.StatusNotFound,
	domain.ErrConflict:       http.StatusConflict,
	domain.ErrRateLimit:      http.StatusTooManyRequests,
	domain.ErrDatabaseError:  http.StatusInternalServerError,
	domain.ErrInternalServer: http.StatusInternalServerError,
}

// writeError renders err as a ServiceError. Internal failures are logged and
// their details withheld from the client.
func (s *Server) writeError(c *gin.Context, err error) {
	code := domain.ErrorCode(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	message := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.WithFields(logrus.Fields{
			"correlation_id": c.GetString(middleware.CorrelationIDKey),
			"path":           c.FullPath(),
		}).WithError(err).Error("Request failed")
		message = "internal error"
	}

	c.AbortWithStatusJSON(status, domain.NewServiceError(code, message, "", c.GetString(middleware.CorrelationIDKey)))
}

// bind decodes the JSON body into dst and reports a 400 on failure.
func (s *Server) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, domain.NewServiceError(
			domain.ErrInvalidInput,
			"invalid request body",
			err.Error(),
			c.GetString(middleware.CorrelationIDKey),
		))
		return false
	}
	return true
}
