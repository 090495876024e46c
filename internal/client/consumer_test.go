package client

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/anrd/internal/domain/heartbeat"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/shared/clock"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/transport"
)

type chanSource struct {
	frames chan transport.Message
	once   sync.Once
	done   chan struct{}
}

func newChanSource() *chanSource {
	return &chanSource{frames: make(chan transport.Message, 16), done: make(chan struct{})}
}

func (s *chanSource) Read() (transport.Message, error) {
	select {
	case msg, ok := <-s.frames:
		if !ok {
			return transport.Message{}, io.EOF
		}
		return msg, nil
	case <-s.done:
		return transport.Message{}, io.EOF
	}
}

func (s *chanSource) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

type ackRecorder struct {
	mu   sync.Mutex
	acks []int64
}

func (r *ackRecorder) SendAck(_ int32, eventID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acks = append(r.acks, eventID)
}

func (r *ackRecorder) snapshot() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.acks...)
}

func testConfig() Config {
	return Config{
		SessionID: 9,
		Heartbeat: heartbeat.Config{AnrTimeoutMs: 300, MinDelayMs: 10, MaxDelayMs: 40, MarginMs: 50},
	}
}

func TestConsumerBatchesAcks(t *testing.T) {
	src := newChanSource()
	acks := &ackRecorder{}
	c := NewConsumer(testConfig(), src, acks, clock.NewSystem(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	for i := int64(0); i < 3; i++ {
		src.frames <- transport.EventMessage(9, i, 0)
	}

	require.Eventually(t, func() bool {
		got := acks.snapshot()
		return len(got) > 0 && got[len(got)-1] == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, len(acks.snapshot()), 3)
	assert.Equal(t, int64(3), c.Handled())

	cancel()
	require.NoError(t, <-done)
}

func TestConsumerFlushesOnClose(t *testing.T) {
	src := newChanSource()
	acks := &ackRecorder{}
	cfg := testConfig()
	cfg.Heartbeat.MaxDelayMs = 10_000
	cfg.Heartbeat.AnrTimeoutMs = 60_000
	c := NewConsumer(cfg, src, acks, clock.NewSystem(), nil)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	src.frames <- transport.EventMessage(9, 4, 0)
	require.Eventually(t, func() bool { return c.Handled() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, acks.snapshot())

	close(src.frames)
	require.NoError(t, <-done)
	assert.Equal(t, []int64{4}, acks.snapshot())
}

func TestConsumerSkipsForeignSessions(t *testing.T) {
	src := newChanSource()
	acks := &ackRecorder{}
	c := NewConsumer(testConfig(), src, acks, clock.NewSystem(), nil)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	src.frames <- transport.EventMessage(1, 1, 0)
	src.frames <- transport.ErrorMessage("boom")
	src.frames <- transport.EventMessage(9, 2, 0)
	close(src.frames)

	require.NoError(t, <-done)
	assert.Equal(t, int64(1), c.Received())
	assert.Equal(t, []int64{2}, acks.snapshot())
}

func TestConsumerWorkDelaysHandling(t *testing.T) {
	src := newChanSource()
	cfg := testConfig()
	cfg.Work = 30 * time.Millisecond
	c := NewConsumer(cfg, src, &ackRecorder{}, clock.NewSystem(), nil)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	start := time.Now()
	src.frames <- transport.EventMessage(9, 0, 0)
	src.frames <- transport.EventMessage(9, 1, 0)
	require.Eventually(t, func() bool { return c.Handled() == 2 }, 2*time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)

	close(src.frames)
	require.NoError(t, <-done)
}

func TestConsumerReconnectStartsOver(t *testing.T) {
	first, second := newChanSource(), newChanSource()
	firstAcks, secondAcks := &ackRecorder{}, &ackRecorder{}

	cfg := testConfig()
	cfg.Heartbeat.MaxDelayMs = 10_000
	cfg.Heartbeat.AnrTimeoutMs = 60_000
	cfg.ReconnectDelay = time.Millisecond

	var dials atomic.Int32
	c := NewConsumer(cfg, first, firstAcks, clock.NewSystem(), nil).
		WithRedial(func(context.Context) (Source, heartbeat.Transport, error) {
			if dials.Add(1) == 1 {
				return nil, nil, errors.New("daemon not up yet")
			}
			return second, secondAcks, nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	first.frames <- transport.EventMessage(9, 5, 0)
	require.Eventually(t, func() bool { return c.Handled() == 1 }, 2*time.Second, 5*time.Millisecond)
	close(first.frames)

	// ids restart on the new stream and must not be ignored as stale
	second.frames <- transport.EventMessage(9, 0, 0)
	require.Eventually(t, func() bool { return c.Handled() == 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, firstAcks.snapshot())
	assert.Equal(t, []int64{0}, secondAcks.snapshot())
	assert.Equal(t, int32(2), dials.Load())
}
