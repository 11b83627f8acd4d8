package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/bestshop/bestshop/internal/shared"
)

// Worker wraps the Asynq server processing the outbound mail queue.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	SendEmail   asynq.HandlerFunc
	Concurrency int
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.SendEmail == nil {
		return nil, errors.New("jobs: send email handler required")
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeSendEmail, cfg.SendEmail)

	return &Worker{server: srv, mux: mux, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// EnqueueSendEmail enqueues a send-email task.
func (c *Client) EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	task, err := NewSendEmailTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// QueueNotifier adapts Client to the accounts notifier contract: a send is
// acknowledged once the task is durably queued, and delivery retries belong
// to the worker.
type QueueNotifier struct {
	client *Client
}

// NewQueueNotifier constructs a QueueNotifier.
func NewQueueNotifier(client *Client) *QueueNotifier {
	return &QueueNotifier{client: client}
}

// SendEmail queues the message for the worker.
func (n *QueueNotifier) SendEmail(ctx context.Context, to, subject, htmlBody string) error {
	_, err := n.client.EnqueueSendEmail(ctx, SendEmailPayload{To: to, Subject: subject, Body: htmlBody})
	if err != nil {
		return fmt.Errorf("jobs: enqueue mail: %w: %v", shared.ErrNotifierUnavailable, err)
	}
	return nil
}
