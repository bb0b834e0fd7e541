package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type fakeAcknowledger struct {
	acked    int
	nacked   int
	rejected int
	requeue  bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acked++
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	f.nacked++
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.rejected++
	f.requeue = requeue
	return nil
}

func TestDeliveryMessageValidate(t *testing.T) {
	t.Parallel()

	if err := (DeliveryMessage{DeliveryID: "d1"}).Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if err := (DeliveryMessage{DeliveryID: "  "}).Validate(); err == nil {
		t.Fatal("Validate() expected error for blank delivery id")
	}
}

func TestDeliveryMessageJSONShape(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(DeliveryMessage{DeliveryID: "d1", SubscriptionID: "s1"})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if got, want := string(raw), `{"deliveryId":"d1","subscriptionId":"s1"}`; got != want {
		t.Fatalf("json = %s, want %s", got, want)
	}
}

func TestHandleDelivery(t *testing.T) {
	t.Parallel()

	consumer := NewRabbitMQConsumer(&RabbitMQ{}, 0, zap.NewNop())

	tests := []struct {
		name         string
		body         string
		handlerErr   error
		wantHandled  bool
		wantAcked    int
		wantNacked   int
		wantRejected int
	}{
		{name: "valid message is acked", body: `{"deliveryId":"d1"}`, wantHandled: true, wantAcked: 1},
		{name: "invalid json is rejected", body: `{`, wantRejected: 1},
		{name: "missing id is rejected", body: `{"subscriptionId":"s1"}`, wantRejected: 1},
		{name: "handler failure is dropped", body: `{"deliveryId":"d1"}`, handlerErr: errors.New("boom"), wantHandled: true, wantNacked: 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ack := &fakeAcknowledger{}
			handled := false
			handler := func(ctx context.Context, msg DeliveryMessage) error {
				handled = true
				if msg.DeliveryID != "d1" {
					t.Errorf("handler got delivery %q, want d1", msg.DeliveryID)
				}
				return tt.handlerErr
			}

			err := consumer.handleDelivery(context.Background(), amqp.Delivery{
				Acknowledger: ack,
				DeliveryTag:  1,
				Body:         []byte(tt.body),
			}, handler)
			if err != nil {
				t.Fatalf("handleDelivery() error = %v", err)
			}

			if handled != tt.wantHandled {
				t.Fatalf("handler called = %v, want %v", handled, tt.wantHandled)
			}
			if ack.acked != tt.wantAcked || ack.nacked != tt.wantNacked || ack.rejected != tt.wantRejected {
				t.Fatalf("ack/nack/reject = %d/%d/%d, want %d/%d/%d",
					ack.acked, ack.nacked, ack.rejected, tt.wantAcked, tt.wantNacked, tt.wantRejected)
			}
			if ack.requeue {
				t.Fatal("nudges must never be requeued")
			}
		})
	}
}

func TestNopPublisher(t *testing.T) {
	t.Parallel()

	var p Publisher = NopPublisher{}
	if err := p.Publish(context.Background(), DeliveryMessage{DeliveryID: "d1"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestNewRabbitMQRequiresURL(t *testing.T) {
	t.Parallel()

	if _, err := NewRabbitMQ(context.Background(), " ", nil); err == nil {
		t.Fatal("NewRabbitMQ() expected error for blank url")
	}
}

func TestReconnectBackOffNeverGivesUp(t *testing.T) {
	t.Parallel()

	policy := newReconnectBackOff()
	for i := 0; i < 50; i++ {
		wait := policy.NextBackOff()
		if wait <= 0 {
			t.Fatalf("NextBackOff() #%d = %s, want positive", i, wait)
		}
		if wait > reconnectMax+reconnectMax/2 {
			t.Fatalf("NextBackOff() #%d = %s, want <= %s plus jitter", i, wait, reconnectMax)
		}
	}
}
