package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/bestshop/bestshop/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// Mailer delivers a single message. The worker owns the SMTP session; this
// package only moves payloads.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// NewSendEmailHandler returns the asynq handler that delivers queued emails
// through the provided mailer. Delivery errors are returned so asynq retries
// with its backoff; a payload that cannot be decoded is dropped.
func NewSendEmailHandler(mailer Mailer, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logger.Error("decode mail payload", slog.Any("error", err))
			return asynq.SkipRetry
		}
		tracker := metrics.Track("mail_send")
		err := mailer.Send(ctx, payload.To, payload.Subject, payload.Body)
		if err != nil {
			logger.Error("send email",
				slog.String("to", payload.To),
				slog.String("subject", payload.Subject),
				slog.Any("error", err))
		} else {
			logger.Info("email sent",
				slog.String("to", payload.To),
				slog.String("subject", payload.Subject))
		}
		return tracker.End(err)
	}
}
