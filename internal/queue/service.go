package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/mahirjain10/edge-image-resize/internal/queue/models"
	"github.com/mahirjain10/edge-image-resize/internal/types"
	"github.com/mahirjain10/edge-image-resize/internal/utils"
)

// Warmer turns one warm request into a stored variant.
type Warmer interface {
	Warm(ctx context.Context, req types.WarmRequest) (types.VariantData, error)
}

// WarmRecorder counts processed warm messages.
type WarmRecorder interface {
	RecordWarm(result string)
}

type Options struct {
	URL            string
	Queue          string
	EventsQueue    string
	Exchange       string
	Workers        int
	Prefetch       int
	ReconnectDelay time.Duration
}

// WarmService consumes warm requests and publishes the resulting variant
// events.
type WarmService struct {
	opts      Options
	warmer    Warmer
	publisher *Publisher
	recorder  WarmRecorder
	logger    *zap.SugaredLogger

	mu   sync.Mutex
	conn *amqp.Connection
}

func NewWarmService(warmer Warmer, opts Options, logger *zap.SugaredLogger) *WarmService {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Exchange == "" {
		opts.Exchange = DefaultExchange
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &WarmService{opts: opts, warmer: warmer, logger: logger}
}

func (s *WarmService) WithRecorder(r WarmRecorder) *WarmService {
	s.recorder = r
	return s
}

// WithPublisher overrides the publisher Start would create.
func (s *WarmService) WithPublisher(p *Publisher) *WarmService {
	s.publisher = p
	return s
}

func (s *WarmService) record(result string) {
	if s.recorder != nil {
		s.recorder.RecordWarm(result)
	}
}

func (s *WarmService) ProcessMessage(ctx context.Context, d amqp.Delivery) error {
	var msg types.WarmMessage
	if err := utils.ParseJSON(d.Body, &msg); err != nil {
		s.record("invalid")
		return models.ProcessingError{Err: err, Requeue: false}
	}
	s.logger.Infow("Received warm request",
		"id", msg.Data.Id,
		"path", msg.Data.Path,
		"width", msg.Data.Width,
		"height", msg.Data.Height,
	)
	if msg.Data.CreatedAt != "" {
		if created, err := time.Parse(time.RFC3339, msg.Data.CreatedAt); err == nil {
			s.logger.Debugw("Warm request queue delay", "id", msg.Data.Id, "delay", time.Since(created))
		}
	}

	data, err := s.warmer.Warm(ctx, msg.Data)
	if err != nil {
		s.record("failed")
		return fmt.Errorf("warm %s: %w", msg.Data.Id, err)
	}
	s.record(strings.ToLower(data.Status))

	if s.publisher != nil {
		if err := s.publisher.PublishVariant(ctx, data); err != nil {
			if utils.IsFatalError(err) {
				return fmt.Errorf("fatal: cannot publish variant event: %w", err)
			}
			s.logger.Warnw("Failed to publish variant event", "key", data.Key, "error", err.Error())
		}
	}
	return nil
}

// handleDelivery acks or nacks d. It returns false when the channel should
// be recreated.
func (s *WarmService) handleDelivery(ctx context.Context, d amqp.Delivery) bool {
	err := s.ProcessMessage(ctx, d)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			s.logger.Warnw("Ack failed", "error", ackErr.Error())
		}
		return true
	}

	if utils.IsFatalError(err) {
		s.logger.Errorw("Fatal error processing message", "error", err.Error())
		_ = d.Nack(false, true)
		return false
	}
	requeue := models.ShouldRequeue(err, utils.IsTransientError)
	s.logger.Warnw("Error processing message", "error", err.Error(), "requeue", requeue)
	_ = d.Nack(false, requeue)
	return true
}

func (s *WarmService) connection() (*amqp.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil && !s.conn.IsClosed() {
		return s.conn, nil
	}
	conn, err := NewRabbitMQClient(s.opts.URL)
	if err != nil {
		return nil, err
	}
	s.conn = conn
	return conn, nil
}

func (s *WarmService) setup() error {
	conn, err := s.connection()
	if err != nil {
		return err
	}
	ch, err := NewChannel(conn)
	if err != nil {
		return err
	}
	if err := DeclareExchange(ch, s.opts.Exchange); err != nil {
		ch.Close()
		return err
	}
	if _, err := NewQueue(ch, s.opts.Queue); err != nil {
		ch.Close()
		return err
	}
	if s.opts.EventsQueue != "" {
		if err := BindEvents(ch, s.opts.Exchange, s.opts.EventsQueue); err != nil {
			ch.Close()
			return err
		}
	}
	if s.publisher == nil {
		s.publisher = NewPublisher(ch, s.opts.Exchange, s.logger)
	} else {
		ch.Close()
	}
	return nil
}

// Start declares the topology, runs the workers and blocks until ctx is done.
func (s *WarmService) Start(ctx context.Context) error {
	if err := s.setup(); err != nil {
		return fmt.Errorf("failed to set up queues: %w", err)
	}
	s.logger.Infow("Queues declared", "queue", s.opts.Queue, "exchange", s.opts.Exchange)

	var wg sync.WaitGroup
	for i := range s.opts.Workers {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			s.work(ctx, worker)
		}(i + 1)
	}

	<-ctx.Done()
	s.logger.Infow("Shutting down all consumers gracefully")
	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *WarmService) work(ctx context.Context, worker int) {
	logger := s.logger.With("queue", s.opts.Queue, "worker", worker)
	var consumerCh *amqp.Channel
	defer func() {
		if consumerCh != nil {
			consumerCh.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Infow("Shutting down")
			return
		default:
		}

		if consumerCh == nil || consumerCh.IsClosed() {
			conn, err := s.connection()
			if err != nil {
				logger.Warnw("Failed to connect to RabbitMQ", "error", err.Error())
				sleep(ctx, s.opts.ReconnectDelay)
				continue
			}
			newCh, err := NewChannel(conn)
			if err != nil {
				logger.Warnw("Failed to create channel", "error", err.Error())
				sleep(ctx, s.opts.ReconnectDelay)
				continue
			}
			consumerCh = newCh
		}

		msgs, err := NewQueueConsumer(consumerCh, s.opts.Queue, s.opts.Prefetch)
		if err != nil {
			logger.Warnw("Failed to start consumer", "error", err.Error())
			consumerCh.Close()
			consumerCh = nil
			sleep(ctx, s.opts.ReconnectDelay)
			continue
		}
		logger.Infow("Worker started, waiting for messages")

		channelOpen := true
		for channelOpen {
			select {
			case <-ctx.Done():
				logger.Infow("Shutting down")
				return
			case d, ok := <-msgs:
				if !ok {
					logger.Warnw("Channel closed, will recreate")
					consumerCh = nil
					channelOpen = false
					break
				}
				if !s.handleDelivery(ctx, d) {
					consumerCh.Close()
					consumerCh = nil
					channelOpen = false
				}
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
