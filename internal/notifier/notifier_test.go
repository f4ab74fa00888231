package notifier

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cornermart/pickup/internal/domain/notify"
)

var sample = notify.Notification{
	ID:        "n-1",
	UserID:    "owner-1",
	Type:      notify.TypeNewOrder,
	Title:     "New order",
	Message:   "New order ORD-1 with 2 item(s), total $16.80",
	OrderID:   "o-1",
	CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
}

type mockStore struct {
	got []notify.Notification
	err error
}

func (m *mockStore) Insert(_ context.Context, n notify.Notification) error {
	if m.err != nil {
		return m.err
	}
	m.got = append(m.got, n)
	return nil
}

func TestInbox(t *testing.T) {
	store := &mockStore{}
	require.NoError(t, NewInbox(store).Notify(context.Background(), sample))
	assert.Equal(t, []notify.Notification{sample}, store.got)

	store.err = errors.New("db down")
	err := NewInbox(store).Notify(context.Background(), sample)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inbox")
}

func TestLog(t *testing.T) {
	assert.NoError(t, Log{}.Notify(context.Background(), sample))
}

func TestMulti(t *testing.T) {
	first := &mockStore{err: errors.New("first failed")}
	second := &mockStore{}
	third := &mockStore{err: errors.New("third failed")}

	err := Multi{NewInbox(first), NewInbox(second), NewInbox(third)}.Notify(context.Background(), sample)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first failed")
	assert.Contains(t, err.Error(), "third failed")
	assert.Len(t, second.got, 1)

	assert.NoError(t, Multi{}.Notify(context.Background(), sample))
}

func TestKafka_Notify(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, "orders.notify", msg.Topic)
		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "owner-1", string(key))

		value, err := msg.Value.Encode()
		require.NoError(t, err)
		var got map[string]any
		require.NoError(t, json.Unmarshal(value, &got))
		assert.Equal(t, "NEW_ORDER", got["type"])
		assert.Equal(t, "o-1", got["order_id"])
		assert.Equal(t, "2024-05-01T12:00:00Z", got["created_at"])
		return nil
	})

	k := NewKafkaWithProducer(producer, "orders.notify")
	require.NoError(t, k.Notify(context.Background(), sample))
	require.NoError(t, k.Close())
}

func TestKafka_NotifyFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	k := NewKafkaWithProducer(producer, "")
	assert.Equal(t, DefaultTopic, k.topic)

	err := k.Notify(context.Background(), sample)
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, k.Close())
}

func TestNewKafka_NoBrokers(t *testing.T) {
	_, err := NewKafka(KafkaConfig{})
	require.Error(t, err)
}
