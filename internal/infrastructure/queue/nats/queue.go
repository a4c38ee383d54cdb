package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
	"github.com/frontrangetitle/titleworks/internal/core/ports"
	"github.com/frontrangetitle/titleworks/internal/infrastructure/resilience"
)

// Queue is the JetStream-backed task queue. Acknowledgment is late: a
// message is acked only after its handler returns nil or the failure is
// reported as terminal, so a worker lost mid-task causes redelivery on
// another worker after the lane's hard limit.
type Queue struct {
	conn       *nats.Conn
	js         nats.JetStreamContext
	stream     string
	retryDelay time.Duration
	executor   *resilience.Executor
	terminal   ports.TerminalFailureFunc
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	RetryDelay           time.Duration
	ResilienceExecutor   *resilience.Executor
	OnTerminalFailure    ports.TerminalFailureFunc
}

func New(url, stream string, options Options) (*Queue, error) {
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
	retryDelay := options.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Minute
	}

	conn, err := nats.Connect(
		url,
		nats.Name("titleworks"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      stream,
		Subjects:  []string{"tasks.*"},
		Retention: nats.WorkQueuePolicy,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		conn.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", stream, err)
	}

	return &Queue{
		conn:       conn,
		js:         js,
		stream:     stream,
		retryDelay: retryDelay,
		executor:   options.ResilienceExecutor,
		terminal:   options.OnTerminalFailure,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// Publish is a fire-and-forget core-NATS publish used by the audit sink.
func (q *Queue) Publish(subject string, data []byte) error {
	if err := q.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (q *Queue) Enqueue(ctx context.Context, task domain.Task) error {
	if _, ok := RouteFor(task.Type); !ok {
		return domain.WrapError(domain.ErrValidation, "enqueue task", fmt.Errorf("unrouted task type %q", task.Type))
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	subject := SubjectFor(task)

	call := func(_ context.Context) error {
		if _, err := q.js.Publish(subject, data); err != nil {
			return fmt.Errorf("jetstream publish %s: %w", subject, err)
		}
		return nil
	}
	if q.executor != nil {
		err = q.executor.Execute(ctx, "queue.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapUnavailableIfNeeded(err)
}

// Subscribe consumes one lane until the context is done. Dispatch is
// throttled to the lane's rate ceiling; deferred tasks wait here rather
// than being dropped.
func (q *Queue) Subscribe(ctx context.Context, lane string, handler ports.TaskHandler) error {
	sub, err := q.js.PullSubscribe(
		lane,
		durableName(lane),
		nats.BindStream(q.stream),
		nats.AckExplicit(),
		nats.AckWait(laneAckWait(lane)),
		nats.MaxDeliver(laneMaxDeliver(lane)),
	)
	if err != nil {
		return fmt.Errorf("pull subscribe %s: %w", lane, err)
	}

	limiter := rate.NewLimiter(rate.Limit(float64(laneRate(lane))/60.0), 1)

	for {
		if err := limiter.Wait(ctx); err != nil {
			_ = sub.Drain()
			return nil
		}

		msgs, err := sub.Fetch(1, nats.MaxWait(5*time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil {
				_ = sub.Drain()
				return nil
			}
			slog.Warn("fetch_failed", "lane", lane, "error", err)
			continue
		}
		for _, msg := range msgs {
			q.dispatch(ctx, lane, msg, handler)
		}
	}
}

func (q *Queue) dispatch(ctx context.Context, lane string, msg *nats.Msg, handler ports.TaskHandler) {
	var task domain.Task
	if err := json.Unmarshal(msg.Data, &task); err != nil {
		slog.Error("poison_task", "lane", lane, "error", err)
		_ = msg.Term()
		return
	}

	attempt := 1
	if meta, err := msg.Metadata(); err == nil {
		attempt = int(meta.NumDelivered)
	}
	task.Attempt = attempt

	route, _ := RouteFor(task.Type)

	// A delivery past the retry budget never reaches the handler. It is
	// only seen when a worker was lost between the final failure and its
	// ack, and running it would push the attempt count past the maximum.
	if attempt > route.MaxRetries {
		q.reportTerminal(ctx, task, fmt.Errorf("retry budget exhausted after %d deliveries", attempt-1))
		if ackErr := msg.Ack(); ackErr != nil {
			slog.Warn("ack_failed", "lane", lane, "task", task.ID, "error", ackErr)
		}
		return
	}

	// Soft limit: the handler context is cancelled so it can clean up
	// at its next checkpoint. The hard limit is the consumer AckWait:
	// a handler that ignores cancellation loses the delivery and the
	// lane redelivers it.
	softCtx, cancel := context.WithTimeout(ctx, route.SoftLimit)
	err := handler(softCtx, task)
	cancel()

	if err == nil {
		if ackErr := msg.Ack(); ackErr != nil {
			slog.Warn("ack_failed", "lane", lane, "task", task.ID, "error", ackErr)
		}
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		err = domain.WrapError(domain.ErrTimeout, string(task.Type), err)
	}

	if terminalFailure(err, attempt, route.MaxRetries) {
		q.reportTerminal(ctx, task, err)
		if ackErr := msg.Ack(); ackErr != nil {
			slog.Warn("ack_failed", "lane", lane, "task", task.ID, "error", ackErr)
		}
		return
	}

	delay := q.retryDelay * time.Duration(attempt)
	slog.Warn("task_retry",
		"lane", lane,
		"task_type", task.Type,
		"task", task.ID,
		"attempt", attempt,
		"max_retries", route.MaxRetries,
		"delay", delay,
		"error", err,
	)
	if nakErr := msg.NakWithDelay(delay); nakErr != nil {
		slog.Warn("nak_failed", "lane", lane, "task", task.ID, "error", nakErr)
	}
}

func (q *Queue) reportTerminal(ctx context.Context, task domain.Task, err error) {
	slog.Error("task_terminal_failure", "task_type", task.Type, "task", task.ID, "attempt", task.Attempt, "error", err)
	if q.terminal != nil {
		q.terminal(ctx, task, err)
	}
}

// terminalFailure decides whether a failed delivery is retried. A
// classified non-retryable error is terminal immediately; otherwise the
// delivery that spends the last budgeted attempt is the final one, so
// the handler never runs more than maxRetries times.
func terminalFailure(err error, attempt, maxRetries int) bool {
	if isClassified(err) && !domain.Retryable(err) {
		return true
	}
	return attempt >= maxRetries
}

// isClassified reports whether an error carries one of the domain error
// kinds. Unclassified failures stay retryable so transient faults from
// lower layers are not promoted to terminal by accident.
func isClassified(err error) bool {
	for _, kind := range []error{
		domain.ErrJurisdictionUnsupported,
		domain.ErrValidation,
		domain.ErrSourceUnavailable,
		domain.ErrSourceExhausted,
		domain.ErrRateLimited,
		domain.ErrTimeout,
	} {
		if domain.IsKind(err, kind) {
			return true
		}
	}
	return false
}

func durableName(lane string) string {
	return "workers_" + strings.ReplaceAll(lane, ".", "_")
}

func laneMaxDeliver(lane string) int {
	max := 0
	for _, r := range routes {
		if r.Lane != lane {
			continue
		}
		if r.MaxRetries > max {
			max = r.MaxRetries
		}
	}
	if lane == LaneHigh {
		max = routes[domain.TaskOrchestrateSearch].MaxRetries
	}
	// One extra delivery beyond the retry budget covers worker loss
	// between final failure and ack.
	return max + 2
}
