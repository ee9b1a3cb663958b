package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LoggerMiddleware logs one line per request. Websocket requests are logged
// when the connection ends.
func (s *Server) LoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next()

	s.logger.Debug("request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("latency", time.Since(start)),
	)
}

// RecoveryMiddleware turns a panic into a 500 and logs it through zap in
// place of gin's default stderr writer.
func (s *Server) RecoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, rec any) {
		s.logger.Error("panic serving request", zap.Any("panic", rec), zap.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse(ErrorMessage500))
	})
}
