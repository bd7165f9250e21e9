package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Notifier enqueues sale lifecycle notifications. It satisfies the sales
// service's notifier port.
type Notifier struct {
	client *Client
	now    func() time.Time
}

// NewNotifier constructs a Notifier around an Asynq client.
func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client, now: func() time.Time { return time.Now().UTC() }}
}

// SaleConfirmed enqueues a confirmed-sale notification.
func (n *Notifier) SaleConfirmed(ctx context.Context, tenantID, saleID uuid.UUID) error {
	task, err := NewSaleConfirmedTask(SaleEventPayload{TenantID: tenantID, SaleID: saleID, At: n.now()})
	if err != nil {
		return err
	}
	_, err = n.client.Enqueue(ctx, task)
	return err
}

// SaleVoided enqueues a voided-sale notification.
func (n *Notifier) SaleVoided(ctx context.Context, tenantID, saleID uuid.UUID) error {
	task, err := NewSaleVoidedTask(SaleEventPayload{TenantID: tenantID, SaleID: saleID, At: n.now()})
	if err != nil {
		return err
	}
	_, err = n.client.Enqueue(ctx, task)
	return err
}
