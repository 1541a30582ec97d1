package logging

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/logdyhq/logdy-core/logdy"
	"github.com/rs/zerolog/log"

	"beecount-worker-go/internal/config"
)

type logdyWriter struct {
	logger logdy.Logdy
}

func (w *logdyWriter) Write(p []byte) (n int, err error) {
	// zerolog hands over one event per call, newline included
	w.logger.LogString(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// StartLogdy starts the embedded Logdy web UI and returns a writer to tee logs
// into, plus the UI URL
func StartLogdy(cfg *config.Config) (io.Writer, string, error) {
	if cfg.LogdyPort <= 0 {
		return nil, "", fmt.Errorf("invalid logdy port %d", cfg.LogdyPort)
	}

	portStr := strconv.Itoa(cfg.LogdyPort)
	ld := logdy.InitializeLogdy(logdy.Config{
		ServerIp:   cfg.LogdyHost,
		ServerPort: portStr,
	}, nil)

	url := fmt.Sprintf("http://%s:%s", cfg.LogdyHost, portStr)
	log.Info().Str("url", url).Msg("Logdy UI available")
	return &logdyWriter{logger: ld}, url, nil
}

// Output returns the log destination: base alone, or base teed into Logdy
// when it is enabled and starts cleanly
func Output(cfg *config.Config, base io.Writer) io.Writer {
	if !cfg.LogdyEnabled {
		return base
	}
	w, _, err := StartLogdy(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Logdy disabled")
		return base
	}
	return io.MultiWriter(base, w)
}
