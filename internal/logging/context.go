package logging

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ctxKey string

const (
	ctxRequestID ctxKey = "request_id"
	ctxStartTime ctxKey = "start_time"
	ctxHiveID    ctxKey = "hive_id"
)

// BindRequest stores the request id and start time read back by the event helpers
func BindRequest(c *gin.Context, requestID string, start time.Time) {
	c.Set(string(ctxRequestID), requestID)
	c.Set(string(ctxStartTime), start)
}

// BindHive tags subsequent events of this request with a hive id
func BindHive(c *gin.Context, hiveID string) {
	c.Set(string(ctxHiveID), hiveID)
}

// RequestID returns the id bound by BindRequest, if any
func RequestID(c *gin.Context) string {
	return c.GetString(string(ctxRequestID))
}

func withGinContext(c *gin.Context, e *zerolog.Event) *zerolog.Event {
	if c == nil {
		return e
	}
	if s := c.GetString(string(ctxRequestID)); s != "" {
		e.Str("request_id", s)
	}
	if s := c.GetString(string(ctxHiveID)); s != "" {
		e.Str("hive_id", s)
	}
	if v, ok := c.Get(string(ctxStartTime)); ok {
		if t, ok2 := v.(time.Time); ok2 {
			e.Dur("duration", time.Since(t))
		}
	}
	return e
}

func Info(c *gin.Context) *zerolog.Event  { return withGinContext(c, log.Info()) }
func Debug(c *gin.Context) *zerolog.Event { return withGinContext(c, log.Debug()) }
func Warn(c *gin.Context) *zerolog.Event  { return withGinContext(c, log.Warn()) }
func Error(c *gin.Context) *zerolog.Event { return withGinContext(c, log.Error()) }
