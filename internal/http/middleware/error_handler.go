package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository"
)

// ErrorHandler обрабатывает ошибки централизованно: типизированные
// AppError отдаются с их кодом и деталями, остальное маскируется.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		if logger.Log != nil {
			logger.Log.WithFields(logrus.Fields{
				"error":  err.Error(),
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Error("Request error")
		}

		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			body := gin.H{"error": appErr.Message, "code": appErr.Code}
			if len(appErr.Details) > 0 {
				body["details"] = appErr.Details
			}
			c.JSON(appErr.HTTPStatus, body)
			return
		}

		switch {
		case errors.Is(err, repository.ErrContractNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "контракт не найден"})
		case errors.Is(err, repository.ErrDisputeNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "спор не найден"})
		case errors.Is(err, repository.ErrVersionConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "контракт был изменён конкурентно, повторите запрос"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "внутренняя ошибка сервера"})
		}
	}
}
