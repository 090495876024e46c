package client

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/anrd/internal/domain/heartbeat"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/runloop"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/shared/clock"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/transport"
)

// Source delivers frames from the daemon.
type Source interface {
	Read() (transport.Message, error)
	io.Closer
}

// Dialer opens a fresh source and the transport its acks go out on.
type Dialer func(ctx context.Context) (Source, heartbeat.Transport, error)

const maxReconnectDelay = 10 * time.Second

// Config tunes a consumer.
type Config struct {
	SessionID int32
	// Work is how long handling one event blocks the loop.
	Work      time.Duration
	Heartbeat heartbeat.Config

	// ReconnectDelay is the first wait before redialing; it doubles per
	// failed attempt.
	ReconnectDelay time.Duration
}

// ackRelay lets the ack transport change across reconnects. Loop
// goroutine only.
type ackRelay struct {
	current heartbeat.Transport
}

func (r *ackRelay) SendAck(sessionID int32, eventID int64) {
	r.current.SendAck(sessionID, eventID)
}

// Consumer handles the events of one session.
type Consumer struct {
	cfg     Config
	source  Source
	redial  Dialer
	relay   *ackRelay
	clock   clock.Clock
	loop    *runloop.Loop
	emitter *heartbeat.Emitter
	logger  *logging.Logger

	received atomic.Int64
	handled  atomic.Int64
}

// NewConsumer wires a consumer. Acks go out through acks, which may be the
// same connection as source.
func NewConsumer(cfg Config, source Source, acks heartbeat.Transport, clk clock.Clock, logger *logging.Logger) *Consumer {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("consumer").With(logging.Session(cfg.SessionID))

	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 500 * time.Millisecond
	}

	loop := runloop.New(logger)
	relay := &ackRelay{current: acks}
	return &Consumer{
		cfg:     cfg,
		source:  source,
		relay:   relay,
		clock:   clk,
		loop:    loop,
		emitter: heartbeat.NewEmitter(cfg.Heartbeat, cfg.SessionID, clk, loop, relay, logger),
		logger:  logger,
	}
}

// WithRedial makes Run reconnect through dial when the source fails
// instead of returning.
func (c *Consumer) WithRedial(dial Dialer) *Consumer {
	c.redial = dial
	return c
}

// Run reads events until the source closes or ctx is done. The source is
// closed when ctx is done. With a redial function Run only stops with ctx.
// Pending acknowledgements are flushed before Run returns.
func (c *Consumer) Run(ctx context.Context) error {
	loopDone := make(chan error, 1)
	go func() { loopDone <- c.loop.Run(context.Background()) }()

	c.logger.Info("consumer started", zap.Duration("work", c.cfg.Work))

	var err error
	src := c.source
	for {
		current := src
		stop := context.AfterFunc(ctx, func() { _ = current.Close() })
		err = c.readEvents(current)
		stop()
		_ = current.Close()

		if ctx.Err() != nil || c.redial == nil {
			break
		}
		c.logger.Warn("event stream lost", zap.Error(err))

		next, acks, dialErr := c.reconnect(ctx)
		if dialErr != nil {
			err = dialErr
			break
		}
		// Events handed to the loop before the drop finish first. The daemon
		// forgets a session whose stream drops, so acks start over.
		c.loop.Post(func() {
			c.emitter.Reset()
			c.relay.current = acks
		})
		src = next
	}

	c.loop.Post(c.emitter.Flush)
	c.loop.Close()
	<-loopDone

	c.logger.Info("consumer stopped",
		zap.Int64("received", c.received.Load()),
		zap.Int64("handled", c.handled.Load()),
		zap.Int64("last_reported", c.emitter.LastReported()),
	)

	if ctx.Err() != nil || err == nil || transport.IsClosed(err) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (c *Consumer) reconnect(ctx context.Context) (Source, heartbeat.Transport, error) {
	delay := c.cfg.ReconnectDelay
	for attempt := 1; ; attempt++ {
		wait := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			wait.Stop()
			return nil, nil, ctx.Err()
		case <-wait.C:
		}

		src, acks, err := c.redial(ctx)
		if err == nil {
			c.logger.Info("reconnected", zap.Int("attempt", attempt))
			return src, acks, nil
		}
		c.logger.Warn("reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
		delay = min(delay*2, maxReconnectDelay)
	}
}

func (c *Consumer) readEvents(src Source) error {
	for {
		msg, err := src.Read()
		if err != nil {
			return err
		}

		switch msg.Type {
		case transport.TypeEvent:
			if msg.SessionID != c.cfg.SessionID {
				c.logger.Warn("event for another session",
					zap.Int32("got", msg.SessionID), logging.Event(msg.EventID))
				continue
			}
			c.received.Add(1)
			eventID, receivedAt := msg.EventID, c.clock.NowMs()
			c.loop.Post(func() { c.handle(eventID, receivedAt) })
		case transport.TypeError:
			c.logger.Warn("daemon reported an error", zap.String("error", msg.Error))
		case transport.TypePong:
			c.logger.Debug("pong")
		}
	}
}

func (c *Consumer) handle(eventID, receivedAt int64) {
	if c.cfg.Work > 0 {
		time.Sleep(c.cfg.Work)
	}
	c.handled.Add(1)
	c.emitter.NoteEventHandled(eventID, receivedAt)
}

// Received returns how many events were accepted from the source.
func (c *Consumer) Received() int64 { return c.received.Load() }

// Handled returns how many events finished handling.
func (c *Consumer) Handled() int64 { return c.handled.Load() }
