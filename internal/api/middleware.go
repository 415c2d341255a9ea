package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const userIDHeader = "x-user-id"

// requireUserID extracts the x-user-id header every collector/task endpoint
// requires and aborts with 400 if it is missing.
func requireUserID() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(userIDHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "x-user-id header is required"})
			return
		}
		c.Set("user_id", userID)
		c.Next()
	}
}

func userID(c *gin.Context) string {
	v, _ := c.Get("user_id")
	id, _ := v.(string)
	return id
}

// loggingMiddleware logs one line per completed request.
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		c.Next()

		s.logger.Debugw("request completed",
			"path", path,
			"status", c.Writer.Status(),
			"method", c.Request.Method,
		)
	}
}
