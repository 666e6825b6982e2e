package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/infrastructure/resilience"
)

const triggerQueueGroup = "etl-schedulers"

// Bus publishes run-finished events and receives manual trigger requests.
type Bus struct {
	conn           *nats.Conn
	eventsSubject  string
	triggerSubject string
	executor       *resilience.Executor
	logger         *slog.Logger
}

type Options struct {
	EventsSubject        string
	TriggerSubject       string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func Connect(url string, options Options) (*Bus, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("telegram-medical-data-pipeline"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Bus{
		conn:           conn,
		eventsSubject:  options.EventsSubject,
		triggerSubject: options.TriggerSubject,
		executor:       options.ResilienceExecutor,
		logger:         logger,
	}, nil
}

func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

func (b *Bus) PublishRunFinished(ctx context.Context, run *domain.PipelineRun) error {
	if b.eventsSubject == "" {
		return nil
	}
	payload, err := encodeRunEvent(run)
	if err != nil {
		return err
	}

	call := func(_ context.Context) error {
		if err := b.conn.Publish(b.eventsSubject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}
	if b.executor != nil {
		err = b.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return resilience.WrapTemporary("nats publish", err, classifyNATSError)
}

// TriggerFunc admits one run and returns the ID it was assigned.
type TriggerFunc func(ctx context.Context) (runID string, err error)

// SubscribeTriggers hands every trigger request to start until ctx ends.
// Requests with a reply subject get a triggerReply back.
func (b *Bus) SubscribeTriggers(ctx context.Context, start TriggerFunc) error {
	if b.triggerSubject == "" {
		<-ctx.Done()
		return nil
	}
	sub, err := b.conn.QueueSubscribe(b.triggerSubject, triggerQueueGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		reply := b.acceptTrigger(ctx, start)
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(reply); err != nil {
			b.logger.Warn("nats_trigger_reply_failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

type runEvent struct {
	Type string              `json:"type"`
	Run  *domain.PipelineRun `json:"run"`
}

func encodeRunEvent(run *domain.PipelineRun) ([]byte, error) {
	if run == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode run event", errors.New("run is nil"))
	}
	payload, err := json.Marshal(runEvent{Type: "pipeline_run_finished", Run: run})
	if err != nil {
		return nil, fmt.Errorf("encode run event: %w", err)
	}
	return payload, nil
}

type triggerReply struct {
	Accepted bool   `json:"accepted"`
	RunID    string `json:"run_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (b *Bus) acceptTrigger(ctx context.Context, start TriggerFunc) []byte {
	runID, err := start(ctx)
	if err != nil {
		b.logger.Warn("nats_trigger_rejected", "error", err)
	} else {
		b.logger.Info("nats_trigger_accepted", "run_id", runID)
	}
	return newTriggerReply(runID, err)
}

func newTriggerReply(runID string, err error) []byte {
	reply := triggerReply{Accepted: err == nil, RunID: runID}
	if err != nil {
		reply.Error = err.Error()
	}
	payload, _ := json.Marshal(reply)
	return payload
}

func classifyNATSError(err error) resilience.ErrorClassification {
	if errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ClassifyTransport(err)
}
