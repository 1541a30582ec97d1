package streamcapture

import (
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// ffmpegEnv is read by OpenCV's FFmpeg backend when a capture is opened
const ffmpegEnv = "OPENCV_FFMPEG_CAPTURE_OPTIONS"

// openMu serialises setting the options and opening a capture, since the
// options live in a process-wide environment variable
var openMu sync.Mutex

// streamingOptions favour low latency on a healthy RTSP feed
var streamingOptions = map[string]string{
	"rtsp_transport":        "tcp",     // Use TCP for more reliable connection
	"buffer_size":           "2097152", // 2MB buffer - smaller for real-time
	"max_delay":             "500000",  // 0.5s max delay
	"stimeout":              "5000000", // 5s timeout
	"rw_timeout":            "5000000", // 5s read/write timeout
	"threads":               "1",
	"flags":                 "low_delay",
	"fflags":                "nobuffer+flush_packets",
	"drop_pkts_on_overflow": "1",
	"analyzeduration":       "500000",
	"probesize":             "2000000",
	"err_detect":            "careful",
	"allowed_media_types":   "video",
	"reconnect":             "1",
	"reconnect_streamed":    "1",
	"reconnect_delay_max":   "2",
}

// recoveryOptions trade latency for robustness after a failed read
var recoveryOptions = map[string]string{
	"rtsp_transport":      "tcp",
	"buffer_size":         "5000000",
	"probesize":           "5000000",
	"stimeout":            "5000000",
	"fflags":              "nobuffer",
	"flags":               "low_delay",
	"max_delay":           "3000000",
	"analyzeduration":     "500000",
	"err_detect":          "careful",
	"reconnect":           "1",
	"reconnect_streamed":  "1",
	"reconnect_delay_max": "1",
	"threads":             "1",
}

// ffmpegOptionString renders options as key;value pairs joined by '|',
// sorted by key
func ffmpegOptionString(options map[string]string) string {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+";"+options[k])
	}
	return strings.Join(pairs, "|")
}

// applyFFmpegOptions must be called with openMu held
func applyFFmpegOptions(options map[string]string) {
	opts := ffmpegOptionString(options)
	if err := os.Setenv(ffmpegEnv, opts); err != nil {
		log.Warn().Err(err).Msg("Failed to set FFmpeg capture options")
		return
	}
	log.Debug().Str("ffmpeg_options", opts).Msg("FFmpeg options configured for OpenCV")
}
