package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nergy-se/heatharmony/pkg/api/v1/types"
	"github.com/sirupsen/logrus"
)

const APIKeyHeader = "X-API-KEY"

// apiKey rejects requests without the configured key. /appstatus is always open.
func apiKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" || strings.HasPrefix(c.Request.URL.Path, "/appstatus/") {
			c.Next()
			return
		}
		got := c.GetHeader(APIKeyHeader)
		if got == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.ErrorResponse{Message: "API Key was not provided."})
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.ErrorResponse{Message: "Unauthorized client."})
			return
		}
		c.Next()
	}
}

func logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("httpapi: request")
	}
}

func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logrus.Errorf("httpapi: panic: %v", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, types.ErrorResponse{Message: "An unexpected error occurred"})
	})
}
