package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Natclanwy/cc-sfs/internal/buffer"
	"github.com/Natclanwy/cc-sfs/internal/config"
	"github.com/Natclanwy/cc-sfs/internal/models"
)

type recorder struct {
	failures int
	err      error
	topics   []string
	payloads [][]byte
	calls    int
}

func (r *recorder) publish(topic string, payload []byte) error {
	r.calls++
	if r.calls <= r.failures {
		return r.err
	}
	r.topics = append(r.topics, topic)
	r.payloads = append(r.payloads, payload)
	return nil
}

func newTestPublisher(t *testing.T, rec *recorder) (*Publisher, *buffer.Buffer) {
	t.Helper()
	buf, err := buffer.New(t.TempDir(), 10, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	p := New(config.MQTTConfig{Topic: "cc-sfs/status"}, buf, zap.NewNop())
	p.publish = rec.publish
	p.retryDelay = time.Millisecond
	return p, buf
}

func statuses(n int) []models.SensorStatus {
	out := make([]models.SensorStatus, n)
	for i := range out {
		out[i].Elegoo.CurrentTicks = i
	}
	return out
}

func TestSendPublishesBatch(t *testing.T) {
	rec := &recorder{}
	p, buf := newTestPublisher(t, rec)

	p.Send(context.Background(), statuses(3))

	if len(rec.payloads) != 1 || rec.topics[0] != "cc-sfs/status" {
		t.Fatalf("published %d payloads to %v", len(rec.payloads), rec.topics)
	}
	var got []models.SensorStatus
	if err := json.Unmarshal(rec.payloads[0], &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[2].Elegoo.CurrentTicks != 2 {
		t.Errorf("payload = %+v", got)
	}
	if buf.Count() != 0 {
		t.Errorf("spooled %d batches after success", buf.Count())
	}
}

func TestSendRetriesTransientFailures(t *testing.T) {
	rec := &recorder{failures: 2, err: errors.New("publish timeout")}
	p, buf := newTestPublisher(t, rec)

	p.Send(context.Background(), statuses(1))

	if rec.calls != 3 || len(rec.payloads) != 1 {
		t.Errorf("calls = %d, delivered = %d", rec.calls, len(rec.payloads))
	}
	if buf.Count() != 0 {
		t.Errorf("spooled %d batches", buf.Count())
	}
}

func TestSendSpoolsAfterRetries(t *testing.T) {
	rec := &recorder{failures: 100, err: errors.New("publish timeout")}
	p, buf := newTestPublisher(t, rec)

	p.Send(context.Background(), statuses(2))

	if rec.calls != maxRetries+1 {
		t.Errorf("calls = %d, want %d", rec.calls, maxRetries+1)
	}
	if buf.Count() != 1 {
		t.Fatalf("spooled %d batches, want 1", buf.Count())
	}
}

func TestSendSpoolsWhenDisconnected(t *testing.T) {
	rec := &recorder{failures: 1, err: ErrNotConnected}
	p, buf := newTestPublisher(t, rec)

	p.Send(context.Background(), statuses(1))
	if rec.calls != 1 || buf.Count() != 1 {
		t.Fatalf("calls = %d, spooled = %d", rec.calls, buf.Count())
	}

	p.FlushBuffer(context.Background())
	if len(rec.payloads) != 1 || buf.Count() != 0 {
		t.Errorf("delivered = %d, spooled = %d after flush", len(rec.payloads), buf.Count())
	}
}

func TestPublishWithoutConnection(t *testing.T) {
	p := New(config.MQTTConfig{Topic: "t"}, nil, zap.NewNop())
	if err := p.mqttPublish("t", []byte("{}")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("mqttPublish() = %v, want ErrNotConnected", err)
	}
	p.Send(context.Background(), statuses(1))
}
