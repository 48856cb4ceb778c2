package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/leadflow/internal/entity"
)

type MockChannel struct {
	mock.Mock
}

func (m *MockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(ctx, exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

func (m *MockChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return m.Called(name, kind, durable, autoDelete, internal, noWait, args).Error(0)
}

func (m *MockChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	ret := m.Called(name, durable, autoDelete, exclusive, noWait, args)
	return amqp.Queue{Name: name}, ret.Error(0)
}

func (m *MockChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	return m.Called(name, key, exchange, noWait, args).Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyContacted(ctx context.Context, ev entity.StageChangedEvent) error {
	return m.Called(ctx, ev).Error(0)
}

type fakeAcknowledger struct {
	acked, nacked, requeued bool
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.acked = true
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked = true
	a.requeued = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type fakeConsumer struct {
	msgs chan amqp.Delivery
	err  error
}

func (c *fakeConsumer) ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.msgs, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func contactedEvent() entity.StageChangedEvent {
	return entity.StageChangedEvent{
		EventID:   "evt-1",
		LeadID:    7,
		Company:   "Acme",
		From:      entity.StageNew,
		To:        entity.StageContacted,
		ChangedAt: time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestPublishStageChanged(t *testing.T) {
	ch := new(MockChannel)
	ev := contactedEvent()

	ch.On("PublishWithContext", mock.Anything, ExchangeName, RoutingKey, false, false,
		mock.MatchedBy(func(msg amqp.Publishing) bool {
			var got entity.StageChangedEvent
			if err := json.Unmarshal(msg.Body, &got); err != nil {
				return false
			}
			return msg.MessageId == ev.EventID &&
				msg.DeliveryMode == amqp.Persistent &&
				msg.ContentType == "application/json" &&
				got.LeadID == ev.LeadID &&
				got.To == entity.StageContacted
		}),
	).Return(nil)

	err := NewProducer(ch).PublishStageChanged(context.Background(), ev)
	assert.NoError(t, err)
	ch.AssertExpectations(t)
}

func TestPublishStageChangedWrapsBrokerError(t *testing.T) {
	ch := new(MockChannel)
	brokerErr := errors.New("channel closed")
	ch.On("PublishWithContext", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(brokerErr)

	err := NewProducer(ch).PublishStageChanged(context.Background(), contactedEvent())
	assert.ErrorIs(t, err, brokerErr)
}

func TestSetupTopology(t *testing.T) {
	ch := new(MockChannel)
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    DLXName,
		"x-dead-letter-routing-key": RoutingKey,
	}

	ch.On("ExchangeDeclare", DLXName, "direct", true, false, false, false, amqp.Table(nil)).Return(nil)
	ch.On("QueueDeclare", DLQName, true, false, false, false, amqp.Table(nil)).Return(nil)
	ch.On("QueueBind", DLQName, RoutingKey, DLXName, false, amqp.Table(nil)).Return(nil)
	ch.On("ExchangeDeclare", ExchangeName, "direct", true, false, false, false, amqp.Table(nil)).Return(nil)
	ch.On("QueueDeclare", QueueName, true, false, false, false, dlqArgs).Return(nil)
	ch.On("QueueBind", QueueName, RoutingKey, ExchangeName, false, amqp.Table(nil)).Return(nil)

	require.NoError(t, setupTopology(ch))
	ch.AssertExpectations(t)
}

func TestSetupTopologyStopsOnError(t *testing.T) {
	ch := new(MockChannel)
	ch.On("ExchangeDeclare", DLXName, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("access refused"))

	err := setupTopology(ch)
	assert.ErrorContains(t, err, DLXName)
	ch.AssertNotCalled(t, "QueueDeclare", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWorkerNotifiesFirstContact(t *testing.T) {
	notifier := new(MockNotifier)
	ev := contactedEvent()
	notifier.On("NotifyContacted", mock.Anything, mock.MatchedBy(func(got entity.StageChangedEvent) bool {
		return got.LeadID == ev.LeadID && got.EventID == ev.EventID
	})).Return(nil)

	body, _ := json.Marshal(ev)
	w := NewWorker(nil, notifier, quietLogger())

	assert.NoError(t, w.process(context.Background(), body))
	notifier.AssertExpectations(t)
}

func TestWorkerIgnoresOtherTransitions(t *testing.T) {
	notifier := new(MockNotifier)
	w := NewWorker(nil, notifier, quietLogger())

	cases := []entity.StageChangedEvent{
		{LeadID: 1, From: entity.StageContacted, To: entity.StagePresentationDone},
		{LeadID: 2, From: "", To: entity.StageNew},
		{LeadID: 3, From: entity.StageContacted, To: entity.StageContacted},
	}
	for _, ev := range cases {
		body, _ := json.Marshal(ev)
		assert.NoError(t, w.process(context.Background(), body))
	}
	notifier.AssertNotCalled(t, "NotifyContacted", mock.Anything, mock.Anything)
}

func TestWorkerWithoutNotifier(t *testing.T) {
	body, _ := json.Marshal(contactedEvent())
	w := NewWorker(nil, nil, quietLogger())
	assert.NoError(t, w.process(context.Background(), body))
}

func TestWorkerRejectsMalformedBody(t *testing.T) {
	w := NewWorker(nil, nil, quietLogger())
	err := w.process(context.Background(), []byte("{not json"))
	assert.ErrorContains(t, err, "decode stage change")
}

func TestWorkerHandleAcksAndNacks(t *testing.T) {
	notifier := new(MockNotifier)
	notifier.On("NotifyContacted", mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()
	w := NewWorker(nil, notifier, quietLogger())

	body, _ := json.Marshal(contactedEvent())

	failed := &fakeAcknowledger{}
	w.handle(context.Background(), amqp.Delivery{Acknowledger: failed, Body: body})
	assert.True(t, failed.nacked)
	assert.False(t, failed.requeued)
	assert.False(t, failed.acked)

	ok := &fakeAcknowledger{}
	w.handle(context.Background(), amqp.Delivery{Acknowledger: ok, Body: []byte(`{"lead_id":1,"to":"Lost"}`)})
	assert.True(t, ok.acked)
	assert.False(t, ok.nacked)
}

func TestWorkerStartStopsOnCancel(t *testing.T) {
	msgs := make(chan amqp.Delivery, 1)
	ack := &fakeAcknowledger{}
	msgs <- amqp.Delivery{Acknowledger: ack, Body: []byte(`{"lead_id":1,"to":"Lost"}`)}

	w := NewWorker(&fakeConsumer{msgs: msgs}, nil, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx, QueueName) }()

	assert.Eventually(t, func() bool { return len(msgs) == 0 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorkerStartConsumeError(t *testing.T) {
	w := NewWorker(&fakeConsumer{err: errors.New("no channel")}, nil, quietLogger())
	err := w.Start(context.Background(), QueueName)
	assert.ErrorContains(t, err, "register consumer")
}

func TestNotifiersJoinErrors(t *testing.T) {
	ok := new(MockNotifier)
	failing := new(MockNotifier)
	ev := contactedEvent()

	ok.On("NotifyContacted", mock.Anything, ev).Return(nil)
	failing.On("NotifyContacted", mock.Anything, ev).Return(errors.New("smtp down"))

	err := Notifiers{failing, ok}.NotifyContacted(context.Background(), ev)
	assert.EqualError(t, err, "smtp down")
	ok.AssertExpectations(t)

	assert.NoError(t, Notifiers{}.NotifyContacted(context.Background(), ev))
}
