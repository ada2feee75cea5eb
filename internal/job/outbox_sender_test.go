package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wealthledger/internal/event"
	"wealthledger/internal/model"
	"wealthledger/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentMessage struct {
	topic, key, value string
}

type fakeProducer struct {
	mu   sync.Mutex
	err  error
	sent []sentMessage
}

func (p *fakeProducer) Send(topic, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, sentMessage{topic, key, value})
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func (p *fakeProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func enqueue(t *testing.T, store *memory.Store) *model.OutboxMessage {
	t.Helper()
	msg, err := event.NewOutboxMessage("wealth_fund_event", event.TypeRechargeApproved, event.FundEvent{EntryID: 1, UserID: 1})
	require.NoError(t, err)
	require.NoError(t, store.Outbox().Create(context.Background(), msg))
	return msg
}

func TestOutboxSenderDeliversPending(t *testing.T) {
	store := memory.New()
	producer := &fakeProducer{}
	sender := NewOutboxSender(store, producer, 3, zap.NewNop())
	msg := enqueue(t, store)

	sender.processPendingMessages(context.Background())

	require.Equal(t, 1, producer.count())
	assert.Equal(t, "wealth_fund_event", producer.sent[0].topic)
	assert.Equal(t, msg.MessageKey, producer.sent[0].key)
	assert.JSONEq(t, msg.Payload, producer.sent[0].value)

	pending, err := store.Outbox().GetPendingMessages(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxSenderMarksFailedAfterMaxRetries(t *testing.T) {
	store := memory.New()
	producer := &fakeProducer{err: errors.New("broker unavailable")}
	sender := NewOutboxSender(store, producer, 3, zap.NewNop())
	ctx := context.Background()
	enqueue(t, store)

	sender.processPendingMessages(ctx)
	sender.processPendingMessages(ctx)

	pending, err := store.Outbox().GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].RetryCount)

	sender.processPendingMessages(ctx)
	pending, err = store.Outbox().GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "超过最大重试次数后不再投递")
}

func TestOutboxSenderStartStop(t *testing.T) {
	store := memory.New()
	producer := &fakeProducer{}
	sender := NewOutboxSender(store, producer, 3, zap.NewNop())
	sender.interval = 5 * time.Millisecond
	enqueue(t, store)

	done := make(chan struct{})
	go func() {
		sender.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool { return producer.count() == 1 }, time.Second, 5*time.Millisecond)
	sender.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop 之后任务没有退出")
	}
}
