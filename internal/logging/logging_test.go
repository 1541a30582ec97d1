package logging

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beecount-worker-go/internal/config"
)

func TestWithStreamTagsHive(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	logger := WithStream(base, "H007")
	logger.Info().Msg("tick")

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "H007", event["hive_id"])
	assert.Equal(t, "tick", event["message"])
}

func TestWithGinContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	BindRequest(c, "req-1", time.Now().Add(-time.Second))
	BindHive(c, "H001")

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	withGinContext(c, logger.Info()).Msg("handled")

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "req-1", event["request_id"])
	assert.Equal(t, "H001", event["hive_id"])
	assert.Contains(t, event, "duration")
	assert.Equal(t, "req-1", RequestID(c))
}

func TestOutputWithoutLogdy(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{LogdyEnabled: false}
	assert.Same(t, &buf, Output(cfg, &buf))
}
