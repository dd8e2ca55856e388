package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/radieske/race-odds-monitor/pkg/contracts/events"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type chanReader struct {
	msgs chan kafka.Message
}

func (r *chanReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m, ok := <-r.msgs:
		if !ok {
			return kafka.Message{}, errors.New("closed")
		}
		return m, nil
	}
}

type memDedup struct {
	mu   sync.Mutex
	seen map[[2]int64]bool
	err  error
}

func (d *memDedup) First(_ context.Context, a events.SteamAlert) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	k := [2]int64{a.RaceID, a.RunnerID}
	if d.seen[k] {
		return false, nil
	}
	d.seen[k] = true
	return true, nil
}

type countingNotifier struct {
	mu      sync.Mutex
	calls   int
	failFor int // primeiras N chamadas falham
	sent    chan events.SteamAlert
}

func (n *countingNotifier) Notify(_ context.Context, a events.SteamAlert) error {
	n.mu.Lock()
	n.calls++
	fail := n.calls <= n.failFor
	n.mu.Unlock()
	if fail {
		return errors.New("webhook down")
	}
	if n.sent != nil {
		n.sent <- a
	}
	return nil
}

type dlq struct {
	msgs []kafka.Message
}

func (d *dlq) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	d.msgs = append(d.msgs, msgs...)
	return nil
}

func payload(t *testing.T, a events.SteamAlert) []byte {
	t.Helper()
	b, err := json.Marshal(a)
	require.NoError(t, err)
	return b
}

func TestHandleDeduplicates(t *testing.T) {
	n := &countingNotifier{}
	var dups, sent int
	p := &Processor{
		Log:         zap.NewNop(),
		Dedup:       &memDedup{seen: map[[2]int64]bool{}},
		Notifier:    n,
		OnDuplicate: func() { dups++ },
		OnNotified:  func() { sent++ },
	}
	a := events.SteamAlert{RaceID: 1, RunnerID: 2, SteamPercentage: 12}

	p.Handle(context.Background(), payload(t, a))
	p.Handle(context.Background(), payload(t, a))

	assert.Equal(t, 1, n.calls)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, dups)
}

func TestHandleDedupErrorStillNotifies(t *testing.T) {
	n := &countingNotifier{}
	var stages []string
	p := &Processor{
		Log:      zap.NewNop(),
		Dedup:    &memDedup{err: errors.New("redis down")},
		Notifier: n,
		OnError:  func(s string) { stages = append(stages, s) },
	}
	p.Handle(context.Background(), payload(t, events.SteamAlert{RaceID: 1, RunnerID: 2}))

	assert.Equal(t, 1, n.calls)
	assert.Equal(t, []string{"dedup"}, stages)
}

func TestHandleRetriesThenDeadLetters(t *testing.T) {
	n := &countingNotifier{failFor: 10}
	q := &dlq{}
	var stages []string
	p := &Processor{
		Log:      zap.NewNop(),
		Notifier: n,
		DLQ:      q,
		Retries:  2,
		Backoff:  time.Millisecond,
		OnError:  func(s string) { stages = append(stages, s) },
	}
	p.Handle(context.Background(), payload(t, events.SteamAlert{RaceID: 5, RunnerID: 6}))

	assert.Equal(t, 3, n.calls)
	require.Len(t, q.msgs, 1)
	assert.Equal(t, "5", string(q.msgs[0].Key))
	assert.Equal(t, []string{"notify"}, stages)
}

func TestHandleRecoversWithinRetries(t *testing.T) {
	n := &countingNotifier{failFor: 1}
	q := &dlq{}
	p := &Processor{Log: zap.NewNop(), Notifier: n, DLQ: q, Backoff: time.Millisecond}
	p.Handle(context.Background(), payload(t, events.SteamAlert{RaceID: 5, RunnerID: 6}))

	assert.Equal(t, 2, n.calls)
	assert.Empty(t, q.msgs)
}

func TestHandleInvalidPayload(t *testing.T) {
	var stages []string
	p := &Processor{Log: zap.NewNop(), Notifier: &countingNotifier{}, OnError: func(s string) { stages = append(stages, s) }}
	p.Handle(context.Background(), []byte("{nope"))
	assert.Equal(t, []string{"decode"}, stages)
}

func TestRunStopsOnCancel(t *testing.T) {
	r := &chanReader{msgs: make(chan kafka.Message, 1)}
	n := &countingNotifier{sent: make(chan events.SteamAlert, 1)}
	var consumed int
	p := &Processor{Log: zap.NewNop(), Reader: r, Notifier: n, OnConsumed: func() { consumed++ }}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	r.msgs <- kafka.Message{Value: payload(t, events.SteamAlert{RaceID: 9, RunnerID: 1})}
	select {
	case a := <-n.sent:
		assert.Equal(t, int64(9), a.RaceID)
	case <-time.After(2 * time.Second):
		t.Fatal("alert not delivered")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 1, consumed)
}
