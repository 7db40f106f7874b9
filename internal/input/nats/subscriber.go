package nats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"correlationbrain/internal/logger"
)

// ErrClosed is returned by Pop after Close.
var ErrClosed = errors.New("nats subscriber closed")

// Config configures the NATS alert subscription.
type Config struct {
	URL           string
	Subject       string
	Queue         string
	Name          string
	BufferSize    int
	PollTimeout   time.Duration
	ReconnectWait time.Duration
}

// Subscriber buffers alert payloads received on a subject and hands them out
// through Pop, matching the list consumer contract.
type Subscriber struct {
	conn        *nats.Conn
	sub         *nats.Subscription
	msgs        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	pollTimeout time.Duration
}

// NewSubscriber connects and subscribes. A non-empty Queue joins a queue group
// so several brains can share one subject.
func NewSubscriber(cfg Config) (*Subscriber, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Subject == "" {
		return nil, fmt.Errorf("nats subject is required")
	}
	if cfg.Name == "" {
		cfg.Name = "correlationbrain"
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}

	s := newSubscriber(cfg.BufferSize, cfg.PollTimeout)
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Infof("NATS reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	var sub *nats.Subscription
	if cfg.Queue != "" {
		sub, err = conn.QueueSubscribe(cfg.Subject, cfg.Queue, s.handle)
	} else {
		sub, err = conn.Subscribe(cfg.Subject, s.handle)
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", cfg.Subject, err)
	}
	s.conn = conn
	s.sub = sub
	logger.Infof("Subscribed to NATS subject %s (queue=%q)", cfg.Subject, cfg.Queue)
	return s, nil
}

func newSubscriber(size int, pollTimeout time.Duration) *Subscriber {
	if size <= 0 {
		size = 1024
	}
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &Subscriber{
		msgs:        make(chan []byte, size),
		done:        make(chan struct{}),
		pollTimeout: pollTimeout,
	}
}

// handle runs on the connection's delivery goroutine and blocks while the
// buffer is full.
func (s *Subscriber) handle(msg *nats.Msg) {
	data := append([]byte(nil), msg.Data...)
	select {
	case s.msgs <- data:
	case <-s.done:
	}
}

// Pop returns the next payload, or nil, nil when nothing arrives within the
// poll timeout.
func (s *Subscriber) Pop(ctx context.Context) ([]byte, error) {
	timer := time.NewTimer(s.pollTimeout)
	defer timer.Stop()

	select {
	case data := <-s.msgs:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrClosed
	case <-timer.C:
		return nil, nil
	}
}

// Close drains the subscription and releases the connection.
func (s *Subscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.conn != nil {
			err = s.conn.Drain()
		}
		close(s.done)
	})
	return err
}
