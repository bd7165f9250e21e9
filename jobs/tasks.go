// Package jobs runs background work through Asynq. Sale notifications are
// fire and forget: the engine enqueues after commit and never waits.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/smtp"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSaleConfirmed notifies the customer a sale was confirmed.
	TaskSaleConfirmed = "sale:confirmed"
	// TaskSaleVoided notifies the customer a sale was voided.
	TaskSaleVoided = "sale:voided"
	// TaskSendEmail sends a transactional email.
	TaskSendEmail = "mail:send"
)

// SaleEventPayload identifies the sale a notification concerns.
type SaleEventPayload struct {
	TenantID uuid.UUID `json:"tenant_id"`
	SaleID   uuid.UUID `json:"sale_id"`
	At       time.Time `json:"at"`
}

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSaleConfirmedTask constructs an Asynq task for a confirmed sale.
func NewSaleConfirmedTask(payload SaleEventPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSaleConfirmed, data), nil
}

// NewSaleVoidedTask constructs an Asynq task for a voided sale.
func NewSaleVoidedTask(payload SaleEventPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSaleVoided, data), nil
}

// SaleEventJob handles sale lifecycle notifications.
type SaleEventJob struct {
	Logger *slog.Logger
}

// HandleConfirmed processes TaskSaleConfirmed tasks.
func (j *SaleEventJob) HandleConfirmed(_ context.Context, t *asynq.Task) error {
	return j.handle("sale confirmed", t)
}

// HandleVoided processes TaskSaleVoided tasks.
func (j *SaleEventJob) HandleVoided(_ context.Context, t *asynq.Task) error {
	return j.handle("sale voided", t)
}

func (j *SaleEventJob) handle(event string, t *asynq.Task) error {
	var payload SaleEventPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("sale notification",
		slog.String("event", event),
		slog.String("tenant", payload.TenantID.String()),
		slog.String("sale", payload.SaleID.String()),
	)
	return nil
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSendEmail, data), nil
}

// EmailJob delivers transactional mail through SMTP.
type EmailJob struct {
	Host   string
	Port   int
	From   string
	Logger *slog.Logger
}

// Handle processes TaskSendEmail tasks.
func (j *EmailJob) Handle(_ context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	addr := fmt.Sprintf("%s:%d", j.Host, j.Port)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		j.From, payload.To, payload.Subject, payload.Body)
	if err := smtp.SendMail(addr, nil, j.From, []string{payload.To}, []byte(msg)); err != nil {
		return fmt.Errorf("send email to %s: %w", payload.To, err)
	}
	return nil
}
