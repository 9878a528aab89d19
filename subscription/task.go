package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/zllovesuki/prepme/broker"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// TaskOptions contains the dependencies for the background Task
type TaskOptions struct {
	SubscriptionManager *Manager
	Consumer            broker.Consumer
	Logger              *zap.Logger
	ExpireInterval      time.Duration
}

// Task applies billing events from the broker to subscription state, and
// periodically expires subscriptions whose access window has closed
type Task struct {
	TaskOptions
}

// NewTask returns a new background Task
func NewTask(option TaskOptions) (*Task, error) {
	if option.SubscriptionManager == nil {
		return nil, fmt.Errorf("nil SubscriptionManager is invalid")
	}
	if option.Consumer == nil {
		return nil, fmt.Errorf("nil Consumer is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.ExpireInterval <= 0 {
		option.ExpireInterval = time.Hour
	}
	return &Task{
		TaskOptions: option,
	}, nil
}

func (t *Task) handleBillingEvents(ctx context.Context, eChan <-chan broker.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eChan:
			if !ok {
				return
			}
			var err error
			switch event.Type {
			case broker.EventPaymentSucceeded:
				err = t.SubscriptionManager.HandlePaymentSucceeded(ctx, event.StripeSubscriptionID, event.Amount, event.Currency, event.StripeInvoiceID)
			case broker.EventPaymentFailed:
				err = t.SubscriptionManager.HandlePaymentFailed(ctx, event.StripeSubscriptionID, event.Amount, event.Currency, event.StripeInvoiceID)
			case broker.EventSubscriptionDeleted:
				err = t.SubscriptionManager.HandleSubscriptionDeleted(ctx, event.StripeSubscriptionID)
			default:
				t.Logger.Warn("Discarding billing event of unknown type",
					zap.String("EventType", string(event.Type)),
				)
				continue
			}
			if err != nil {
				t.Logger.Error("Cannot process billing event",
					zap.String("EventType", string(event.Type)),
					zap.String("StripeSubscriptionID", event.StripeSubscriptionID),
					zap.Error(err),
				)
			}
		}
	}
}

// HandleEvents starts consuming billing events from the broker
func (t *Task) HandleEvents(ctx context.Context) error {
	eChan, err := t.Consumer.ReceiveBillingEvents(ctx)
	if err != nil {
		return extErrors.Wrap(err, "Cannot get billing events channel")
	}
	go t.handleBillingEvents(ctx, eChan)
	return nil
}

func (t *Task) expireLoop(ctx context.Context) {
	ticker := time.NewTicker(t.ExpireInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := t.SubscriptionManager.ExpireLapsed(ctx, time.Now())
			if err != nil {
				t.Logger.Error("Cannot expire lapsed subscriptions",
					zap.Error(err),
				)
				continue
			}
			if expired > 0 {
				t.Logger.Info("Expired lapsed subscriptions",
					zap.Int64("Count", expired),
				)
			}
		}
	}
}

// RunExpiry starts the periodic expiry sweep in the background
func (t *Task) RunExpiry(ctx context.Context) error {
	go t.expireLoop(ctx)
	return nil
}
