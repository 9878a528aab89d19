package broker

import (
	"context"
	"encoding/json"

	extErrors "github.com/pkg/errors"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

var _ Producer = &AMQPBroker{}
var _ Consumer = &AMQPBroker{}

const (
	billingExchange string = "billing_events"
	billingQueue           = "billing_events_task"
	billingKey             = "billing"
)

// AMQPBroker describes a message broker via RabbitMQ
type AMQPBroker struct {
	connection *amqp.Connection
	channel    *amqp.Channel
	logger     *zap.Logger
}

// NewAMQPBroker returns a Message Broker over RabbitMQ
func NewAMQPBroker(logger *zap.Logger, amqpURI string) (*AMQPBroker, error) {
	amqpConn, err := amqp.Dial(amqpURI)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot connect to Message Broker")
	}
	amqpChan, err := amqpConn.Channel()
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot create broker channel")
	}
	broker := &AMQPBroker{
		connection: amqpConn,
		channel:    amqpChan,
		logger:     logger,
	}
	if err := broker.setupBillingExchange(); err != nil {
		return nil, extErrors.Wrap(err, "Cannot declare exchange for billing events")
	}
	return broker, nil
}

func (a *AMQPBroker) setupBillingExchange() error {
	return a.channel.ExchangeDeclare(
		billingExchange, // name
		"direct",        // type
		true,            // durable
		false,           // auto-deleted
		false,           // internal
		false,           // no-wait
		nil,             // arguments
	)
}

// Close will close the channel and connection to release resources
func (a *AMQPBroker) Close() {
	a.channel.Close()
	a.connection.Close()
}

// PublishBillingEvent sends one billing event to the exchange
func (a *AMQPBroker) PublishBillingEvent(ctx context.Context, event Event) error {
	body, err := json.Marshal(&event)
	if err != nil {
		return extErrors.Wrap(err, "Cannot encode billing event")
	}
	return a.channel.Publish(
		billingExchange,
		billingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
		},
	)
}

// ReceiveBillingEvents returns a channel of billing events. The channel is
// closed when ctx is cancelled or the underlying delivery channel closes.
func (a *AMQPBroker) ReceiveBillingEvents(ctx context.Context) (<-chan Event, error) {
	queue, err := a.channel.QueueDeclare(
		billingQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot declare queue for billing events")
	}
	if err := a.channel.QueueBind(
		queue.Name,
		billingKey,
		billingExchange,
		false,
		nil,
	); err != nil {
		return nil, extErrors.Wrap(err, "Cannot bind billing queue to exchange")
	}
	deliveries, err := a.channel.Consume(
		queue.Name,
		"",    // consumer
		true,  // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot consume from billing queue")
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal(d.Body, &event); err != nil {
					a.logger.Error("Discarding malformed billing event",
						zap.Error(err),
					)
					continue
				}
				events <- event
			}
		}
	}()

	return events, nil
}
