// Package response holds the JSON envelope every HTTP endpoint answers with.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Result[T any] struct {
	StatusCode int    `json:"statusCode"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Data       T      `json:"data"`
}

func OK[T any](c *gin.Context, status int, message string, data T) {
	c.JSON(status, Result[T]{
		StatusCode: status,
		Success:    status < http.StatusBadRequest,
		Message:    message,
		Data:       data,
	})
}

// Error aborts the request chain with a failed envelope and null data.
func Error(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Result[any]{
		StatusCode: status,
		Success:    false,
		Message:    message,
	})
}
