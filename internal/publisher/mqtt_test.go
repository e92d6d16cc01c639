package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient implements only what Publisher calls.
type fakeClient struct {
	mqtt.Client
	err  error
	sent []published
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.sent = append(f.sent, published{topic, qos, retained, payload.([]byte)})
	return doneToken{f.err}
}

func (f *fakeClient) IsConnected() bool { return false }

func TestPublishKPIs(t *testing.T) {
	fc := &fakeClient{}
	p := newPublisher(fc, "/garage/")

	err := p.PublishKPIs(context.Background(), "ana", map[string]int{"recargas": 3})
	if err != nil {
		t.Fatalf("PublishKPIs() error = %v", err)
	}
	if len(fc.sent) != 1 {
		t.Fatalf("sent %d messages", len(fc.sent))
	}
	got := fc.sent[0]
	if got.topic != "garage/ana/kpis" || got.qos != 1 || !got.retained {
		t.Errorf("published %+v", got)
	}
	if string(got.payload) != `{"recargas":3}` {
		t.Errorf("payload = %s", got.payload)
	}
	p.Close()
}

func TestPublishKPIs_Error(t *testing.T) {
	fc := &fakeClient{err: errors.New("not connected")}
	p := newPublisher(fc, "")

	if p.Topic("bia") != "recargas/bia/kpis" {
		t.Errorf("default topic = %q", p.Topic("bia"))
	}
	if err := p.PublishKPIs(context.Background(), "bia", 1); err == nil {
		t.Error("expected publish error")
	}
	if err := p.PublishKPIs(context.Background(), "bia", func() {}); err == nil {
		t.Error("expected encoding error")
	}
}

func TestBrokerURL(t *testing.T) {
	if got := brokerURL("localhost:1883"); got != "tcp://localhost:1883" {
		t.Errorf("brokerURL = %q", got)
	}
	if got := brokerURL("ssl://mq:8883"); got != "ssl://mq:8883" {
		t.Errorf("brokerURL = %q", got)
	}
}

func TestNew_RequiresBroker(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New without broker should fail")
	}
}
