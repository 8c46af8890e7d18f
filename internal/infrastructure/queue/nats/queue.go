package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
	"github.com/joseffiran/SilkRouteHelper-1/internal/infrastructure/resilience"
)

type Options struct {
	Stream       string
	Subject      string
	Durable      string
	MaxDeliver   int
	RetryBackoff time.Duration
	AckWait      time.Duration
	Workers      int
	StreamMaxAge time.Duration

	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func (o Options) normalize() Options {
	if o.Stream == "" {
		o.Stream = "DECLARATION_JOBS"
	}
	if o.Subject == "" {
		o.Subject = "declarations.extract"
	}
	if o.Durable == "" {
		o.Durable = "extraction-workers"
	}
	if o.MaxDeliver <= 0 {
		o.MaxDeliver = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = time.Minute
	}
	if o.AckWait <= 0 {
		o.AckWait = 5 * time.Minute
	}
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.StreamMaxAge <= 0 {
		o.StreamMaxAge = 24 * time.Hour
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 2 * time.Second
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = 2 * time.Second
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = 60
	}
	return o
}

// Queue carries extraction jobs on a JetStream work-queue stream. Each job is
// removed from the stream once a worker acks or terminates it.
type Queue struct {
	conn     *nats.Conn
	js       jetstream.JetStream
	stream   jetstream.Stream
	opts     Options
	executor *resilience.Executor
}

func New(ctx context.Context, url string, options Options) (*Queue, error) {
	opts := options.normalize()
	retryOnFailedConnect := true
	if opts.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *opts.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("silkroute-declarations"),
		nats.Timeout(opts.ConnectTimeout),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", fmt.Sprint(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("init jetstream: %w", err)
	}
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      opts.Stream,
		Subjects:  []string{opts.Subject},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
		MaxAge:    opts.StreamMaxAge,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", opts.Stream, err)
	}

	return &Queue{
		conn:     conn,
		js:       js,
		stream:   stream,
		opts:     opts,
		executor: opts.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) Connected() bool {
	return q.conn != nil && q.conn.IsConnected()
}

// Enqueue publishes job. The message id deduplicates repeated publishes of
// the same run.
func (q *Queue) Enqueue(ctx context.Context, job domain.ExtractionJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal extraction job: %w", err)
	}
	msgID := job.JobID + "-" + strconv.FormatInt(job.RunSeq, 10)

	call := func(callCtx context.Context) error {
		if _, err := q.js.Publish(callCtx, q.opts.Subject, payload, jetstream.WithMsgID(msgID)); err != nil {
			return fmt.Errorf("jetstream publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// Consume feeds deliveries to handler until ctx is cancelled. nil acks the
// message, an ErrTemporary error naks it with the retry backoff and any other
// error terminates it.
func (q *Queue) Consume(ctx context.Context, handler func(context.Context, domain.JobDelivery) error) error {
	consumer, err := q.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       q.opts.Durable,
		FilterSubject: q.opts.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       q.opts.AckWait,
		MaxDeliver:    q.opts.MaxDeliver,
	})
	if err != nil {
		return fmt.Errorf("ensure consumer %s: %w", q.opts.Durable, err)
	}

	var wg sync.WaitGroup
	slots := make(chan struct{}, q.opts.Workers)
	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-slots }()
			q.handle(ctx, msg, handler)
		}()
	}, jetstream.PullMaxMessages(q.opts.Workers))
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	slog.Info("job_consumer_started", "stream", q.opts.Stream, "durable", q.opts.Durable, "workers", q.opts.Workers)

	<-ctx.Done()
	consumeCtx.Stop()
	wg.Wait()
	return nil
}

func (q *Queue) handle(ctx context.Context, msg jetstream.Msg, handler func(context.Context, domain.JobDelivery) error) {
	var numDelivered uint64 = 1
	if meta, err := msg.Metadata(); err == nil {
		numDelivered = meta.NumDelivered
	}
	delivery, err := decodeDelivery(msg.Data(), numDelivered, q.opts.MaxDeliver)
	if err != nil {
		slog.Error("job_message_invalid", "error", err.Error())
		settle(msg, err, q.opts.RetryBackoff)
		return
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	handleErr := handler(handlerCtx, delivery)
	if handleErr != nil {
		slog.Warn("job_handler_error",
			"job_id", delivery.Job.JobID,
			"document_id", delivery.Job.DocumentID,
			"attempt", delivery.Attempt,
			"error", handleErr.Error(),
		)
	}
	settle(msg, handleErr, q.opts.RetryBackoff)
}

type settlement string

const (
	settledAck  settlement = "ack"
	settledNak  settlement = "nak"
	settledTerm settlement = "term"
)

type acknowledger interface {
	Ack() error
	NakWithDelay(delay time.Duration) error
	Term() error
}

func settle(msg acknowledger, handleErr error, backoff time.Duration) settlement {
	var (
		action settlement
		err    error
	)
	switch {
	case handleErr == nil:
		action, err = settledAck, msg.Ack()
	case domain.IsKind(handleErr, domain.ErrTemporary):
		action, err = settledNak, msg.NakWithDelay(backoff)
	default:
		action, err = settledTerm, msg.Term()
	}
	if err != nil {
		slog.Warn("job_settle_failed", "action", string(action), "error", err.Error())
	}
	return action
}

func decodeDelivery(data []byte, numDelivered uint64, maxDeliver int) (domain.JobDelivery, error) {
	var job domain.ExtractionJob
	if err := json.Unmarshal(data, &job); err != nil {
		return domain.JobDelivery{}, domain.WrapError(domain.ErrInvalidInput, "decode extraction job", err)
	}
	if job.JobID == "" || job.DocumentID == "" {
		return domain.JobDelivery{}, domain.WrapError(
			domain.ErrInvalidInput,
			"decode extraction job",
			errors.New("job_id and document_id are required"),
		)
	}
	return domain.JobDelivery{Job: job, Attempt: int(numDelivered), MaxAttempts: maxDeliver}, nil
}
