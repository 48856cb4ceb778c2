package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/xavierca1/leadflow/internal/entity"
)

// Notifier is told about leads that were just contacted for the first time.
type Notifier interface {
	NotifyContacted(ctx context.Context, ev entity.StageChangedEvent) error
}

// Notifiers fans an event out to every notifier and joins their errors.
type Notifiers []Notifier

func (ns Notifiers) NotifyContacted(ctx context.Context, ev entity.StageChangedEvent) error {
	var errs []error
	for _, n := range ns {
		if err := n.NotifyContacted(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Consumer interface {
	ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

type Worker struct {
	Channel  Consumer
	Notifier Notifier
	Logger   logrus.FieldLogger
}

func NewWorker(ch Consumer, notifier Notifier, logger logrus.FieldLogger) *Worker {
	return &Worker{
		Channel:  ch,
		Notifier: notifier,
		Logger:   logger,
	}
}

// Start consumes queueName until ctx is cancelled or the channel closes.
func (w *Worker) Start(ctx context.Context, queueName string) error {
	msgs, err := w.Channel.ConsumeWithContext(ctx,
		queueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	w.Logger.WithField("queue", queueName).Info("lead event worker started")

	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("lead event worker stopped")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			w.handle(ctx, d)
		}
	}
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	if err := w.process(ctx, d.Body); err != nil {
		w.Logger.WithError(err).WithField("message_id", d.MessageId).Error("lead event rejected")
		// no requeue: the DLX keeps it for inspection
		d.Nack(false, false)
		return
	}
	d.Ack(false)
}

func (w *Worker) process(ctx context.Context, body []byte) error {
	var ev entity.StageChangedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("decode stage change: %w", err)
	}

	log := w.Logger.WithFields(logrus.Fields{
		"lead_id": ev.LeadID,
		"from":    ev.From,
		"to":      ev.To,
	})

	if !ev.FirstContact() || w.Notifier == nil {
		log.Debug("stage change recorded")
		return nil
	}

	if err := w.Notifier.NotifyContacted(ctx, ev); err != nil {
		return fmt.Errorf("notify contacted lead %d: %w", ev.LeadID, err)
	}
	log.Info("contacted notification sent")
	return nil
}
