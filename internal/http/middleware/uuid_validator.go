package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UUIDValidator проверяет, что path-параметр является валидным UUID,
// до того как запрос дойдёт до handler'а.
func UUIDValidator(paramName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Param(paramName)
		if _, err := uuid.Parse(raw); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "некорректный идентификатор в пути запроса",
				"code":  "VALIDATION_ERROR",
			})
			return
		}
		c.Next()
	}
}
