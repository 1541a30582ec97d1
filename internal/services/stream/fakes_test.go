package stream

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"beecount-worker-go/internal/config"
	"beecount-worker-go/internal/models"
	"beecount-worker-go/internal/services/journal"
)

var errReadFailed = errors.New("read failed")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeFrame struct {
	cropErr error
}

func (fakeFrame) Size() image.Point { return image.Pt(320, 240) }
func (fakeFrame) Close() error      { return nil }

func (f fakeFrame) Crop(image.Rectangle) (models.Frame, error) {
	if f.cropErr != nil {
		return nil, f.cropErr
	}
	return f, nil
}

// fakeCapture replays readErrs in order, then yields frames. When block is
// set, Read waits for it to be closed.
type fakeCapture struct {
	mu        sync.Mutex
	readErrs  []error
	reinitErr error
	cropErr   error
	block     chan struct{}

	reads    atomic.Int64
	reinits  atomic.Int64
	released atomic.Int64
}

func (c *fakeCapture) Read() (models.Frame, error) {
	c.reads.Add(1)
	if c.block != nil {
		<-c.block
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.readErrs) > 0 {
		err := c.readErrs[0]
		c.readErrs = c.readErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return fakeFrame{cropErr: c.cropErr}, nil
}

func (c *fakeCapture) setCropErr(err error) {
	c.mu.Lock()
	c.cropErr = err
	c.mu.Unlock()
}

func (c *fakeCapture) Reinitialize() error {
	c.reinits.Add(1)
	return c.reinitErr
}

func (c *fakeCapture) Release() error {
	c.released.Add(1)
	return nil
}

func openerFor(c *fakeCapture) Opener {
	return func(string) (Capture, error) { return c, nil }
}

// fakeDetector returns one scripted centroid set per call, then nothing
type fakeDetector struct {
	mu     sync.Mutex
	script [][]models.Point
	err    error
	closed atomic.Int64
}

func (d *fakeDetector) Detect(context.Context, models.Frame) ([]models.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	if len(d.script) == 0 {
		return nil, nil
	}
	points := d.script[0]
	d.script = d.script[1:]

	out := make([]models.Detection, 0, len(points))
	for _, p := range points {
		out = append(out, models.Detection{Centroid: p})
	}
	return out, nil
}

func (d *fakeDetector) Algo() string { return config.AlgoOpenCV }

func (d *fakeDetector) Close() error {
	d.closed.Add(1)
	return nil
}

type published struct {
	topic   string
	payload []byte
	qos     byte
}

type fakePublisher struct {
	mu       sync.Mutex
	fail     bool
	messages []published
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload []byte, qos byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.messages = append(p.messages, published{topic: topic, payload: append([]byte(nil), payload...), qos: qos})
	return nil
}

func (p *fakePublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.fail
}

func (p *fakePublisher) Close(context.Context) error { return nil }

func (p *fakePublisher) setFail(fail bool) {
	p.mu.Lock()
	p.fail = fail
	p.mu.Unlock()
}

func (p *fakePublisher) sent() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.messages...)
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
	cutoffs []time.Time
}

func (j *fakeJournal) Record(_ context.Context, e journal.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func (j *fakeJournal) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cutoffs = append(j.cutoffs, cutoff)
	return 0, nil
}

type fixedCPU float64

func (c fixedCPU) Percent() float64 { return float64(c) }

// testStream is a horizontal line at y=100 with motion towards larger y counted as out
func testStream(hiveID string) config.StreamConfig {
	cfg := config.DefaultStreamConfig()
	cfg.HiveID = hiveID
	cfg.URL = "rtsp://camera/" + hiveID
	cfg.Line = config.LineConfig{Axis: config.AxisY, Pos: 100, Margin: 2}
	cfg.Direction.UpIsOut = true
	return cfg
}

func newTestWorker(t *testing.T, hiveID string, capture *fakeCapture, det *fakeDetector, clock *testClock) *Worker {
	t.Helper()

	w, err := NewWorker(testStream(hiveID), openerFor(capture), det, WorkerOptions{
		FPSWindow: 5,
		Backoff:   BackoffPolicy{Min: time.Second, Max: 8 * time.Second},
		Logger:    zerolog.Nop(),
		Clock:     clock.Now,
	})
	require.NoError(t, err)
	return w
}

// crossingOut moves one bee from above the line to below it
func crossingOut() [][]models.Point {
	return [][]models.Point{{models.Pt(50, 90)}, {models.Pt(50, 110)}}
}

func crossingIn() [][]models.Point {
	return [][]models.Point{{models.Pt(50, 110)}, {models.Pt(50, 90)}}
}
