package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/joshp123/kumocloud/internal/coordinator"
	"github.com/joshp123/kumocloud/internal/kumo"
)

type publishedMessage struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeToken struct{}

func (fakeToken) Wait() bool                     { return true }
func (fakeToken) WaitTimeout(time.Duration) bool { return true }
func (fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (fakeToken) Error() error { return nil }

type fakeClient struct {
	paho.Client
	published []publishedMessage
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload any) paho.Token {
	f.published = append(f.published, publishedMessage{
		topic:    topic,
		retained: retained,
		payload:  payload.([]byte),
	})
	return fakeToken{}
}

func TestPublishSnapshotWritesRetainedState(t *testing.T) {
	client := &fakeClient{}
	b := &Bridge{
		client: client,
		prefix: "kumocloud",
		siteID: "site1",
		log:    zerolog.Nop(),
	}

	power := 1
	temp := 21.5
	b.PublishSnapshot(&coordinator.Snapshot{
		Devices: map[string]kumo.DeviceDetail{
			"d1": {Power: &power, RoomTemp: &temp},
		},
	})

	if len(client.published) != 1 {
		t.Fatalf("publishes = %d, want 1", len(client.published))
	}
	msg := client.published[0]
	if msg.topic != "kumocloud/site1/d1/state" {
		t.Fatalf("topic = %q", msg.topic)
	}
	if !msg.retained {
		t.Fatal("state message should be retained")
	}

	var detail kumo.DeviceDetail
	if err := json.Unmarshal(msg.payload, &detail); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if detail.Power == nil || *detail.Power != 1 {
		t.Fatalf("payload power = %v, want 1", detail.Power)
	}
}
