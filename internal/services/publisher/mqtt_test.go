package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beecount-worker-go/internal/config"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient implements the parts of mqtt.Client the publisher uses
type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	connectToken mqtt.Token
	publishToken mqtt.Token
	sent         []published
	disconnected bool
}

func (c *fakeClient) Connect() mqtt.Token { return c.connectToken }
func (c *fakeClient) IsConnected() bool   { return true }

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload any) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return c.publishToken
}

func newTestPublisher(client *fakeClient) *MQTTPublisher {
	cfg := &config.Config{
		WorkerID:           "test",
		MQTTHost:           "localhost",
		MQTTPort:           1883,
		MQTTConnectTimeout: 50 * time.Millisecond,
	}
	p := NewMQTTPublisher(cfg)
	p.newClient = func(*mqtt.ClientOptions) mqtt.Client { return client }
	return p
}

func TestTopic(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "hives/H001/beecount", Topic("H001"))
}

func TestMQTTPublisher_PublishesAfterConnect(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		connectToken: completedToken(nil),
		publishToken: completedToken(nil),
	}
	p := newTestPublisher(client)
	assert.Equal(t, "tcp://localhost:1883", p.broker)

	require.NoError(t, p.Connect(context.Background()))
	require.True(t, p.IsConnected())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Publish(ctx, Topic("H001"), []byte(`{"hive_id":"H001"}`), 1))

	require.Len(t, client.sent, 1)
	assert.Equal(t, "hives/H001/beecount", client.sent[0].topic)
	assert.Equal(t, byte(1), client.sent[0].qos)

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Published["hives/H001/beecount"])
	assert.Zero(t, stats.Errors)

	require.NoError(t, p.Close(context.Background()))
	assert.True(t, client.disconnected)
	assert.False(t, p.IsConnected())
}

func TestMQTTPublisher_NotConnected(t *testing.T) {
	t.Parallel()

	p := newTestPublisher(&fakeClient{})
	err := p.Publish(context.Background(), "hives/H1/beecount", nil, 1)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, uint64(1), p.Stats().Errors)
}

func TestMQTTPublisher_ConnectTimeout(t *testing.T) {
	t.Parallel()

	p := newTestPublisher(&fakeClient{connectToken: pendingToken()})
	err := p.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
	assert.False(t, p.IsConnected())
}

func TestMQTTPublisher_PublishFailures(t *testing.T) {
	t.Parallel()

	t.Run("broker error", func(t *testing.T) {
		t.Parallel()
		refused := errors.New("not authorized")
		client := &fakeClient{connectToken: completedToken(nil), publishToken: completedToken(refused)}
		p := newTestPublisher(client)
		require.NoError(t, p.Connect(context.Background()))

		err := p.Publish(context.Background(), "t", []byte("x"), 1)
		assert.ErrorIs(t, err, refused)
		assert.Equal(t, uint64(1), p.Stats().Errors)
	})

	t.Run("no ack before deadline", func(t *testing.T) {
		t.Parallel()
		client := &fakeClient{connectToken: completedToken(nil), publishToken: pendingToken()}
		p := newTestPublisher(client)
		require.NoError(t, p.Connect(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := p.Publish(ctx, "t", []byte("x"), 1)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
