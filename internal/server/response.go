package server

import (
	"github.com/gin-gonic/gin"
)

const requestIDKey = "request_id"

// Response is the envelope of every JSON reply.
type Response struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func success(c *gin.Context, code int, message string, data any) {
	c.JSON(code, Response{
		Success:   true,
		Message:   message,
		Data:      data,
		RequestID: c.GetString(requestIDKey),
	})
}

func failure(c *gin.Context, code int, message string, err error) {
	resp := Response{
		Message:   message,
		RequestID: c.GetString(requestIDKey),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	c.AbortWithStatusJSON(code, resp)
}
