package zigbee

import (
	"encoding/json"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackerspacekrk/iotm/internal/event"
	"github.com/hackerspacekrk/iotm/internal/multimap"
)

// fakeToken satisfies mqtt.Token without ever touching a real broker.
type fakeToken struct{ err error }

func (f *fakeToken) Wait() bool                     { return true }
func (f *fakeToken) WaitTimeout(time.Duration) bool  { return true }
func (f *fakeToken) Done() <-chan struct{}           { ch := make(chan struct{}); close(ch); return ch }
func (f *fakeToken) Error() error                    { return f.err }

// fakeMQTTClient records Publish calls and otherwise satisfies mqtt.Client
// with no-op behavior, so Adapter.Handle/Exit can be exercised without a
// broker connection.
type fakeMQTTClient struct {
	published []publishCall
	connected bool
}

type publishCall struct {
	topic   string
	payload []byte
}

func (c *fakeMQTTClient) IsConnected() bool      { return c.connected }
func (c *fakeMQTTClient) IsConnectionOpen() bool { return c.connected }
func (c *fakeMQTTClient) Connect() mqtt.Token    { c.connected = true; return &fakeToken{} }
func (c *fakeMQTTClient) Disconnect(quiesce uint) { c.connected = false }
func (c *fakeMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}
	c.published = append(c.published, publishCall{topic: topic, payload: b})
	return &fakeToken{}
}
func (c *fakeMQTTClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return &fakeToken{}
}
func (c *fakeMQTTClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return &fakeToken{}
}
func (c *fakeMQTTClient) Unsubscribe(topics ...string) mqtt.Token { return &fakeToken{} }
func (c *fakeMQTTClient) AddRoute(topic string, callback mqtt.MessageHandler) {}
func (c *fakeMQTTClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

func TestParseDeviceEntrySkipsMissingFriendlyName(t *testing.T) {
	raw := json.RawMessage(`{"ieee_address": "0x1"}`)
	d, caps := parseDeviceEntry(raw)
	assert.Nil(t, d)
	assert.Nil(t, caps)
}

func TestParseDeviceEntryClassifiesKnownExposures(t *testing.T) {
	raw := json.RawMessage(`{
		"friendly_name": "kitchen_sensor",
		"ieee_address": "0x00158d0001",
		"definition": {
			"exposes": [
				{"type": "numeric", "property": "temperature"},
				{"type": "numeric", "property": "humidity"},
				{"type": "switch", "property": "state"},
				{"type": "numeric", "property": "unknown_property"}
			]
		}
	}`)

	d, caps := parseDeviceEntry(raw)
	require.NotNil(t, d)
	assert.Equal(t, "kitchen_sensor", d.friendlyName)
	assert.Equal(t, "0x00158d0001", d.ieeeAddress)
	assert.ElementsMatch(t, []string{"temperature", "humidity", "relay"}, caps)
	assert.Equal(t, "temperature", d.stateKeys["temperature"])
	assert.Equal(t, "humidity", d.stateKeys["humidity"])
	assert.Equal(t, "state", d.stateKeys["relay"])
}

func TestParseDeviceEntryIgnoresUnclassifiedExposes(t *testing.T) {
	raw := json.RawMessage(`{
		"friendly_name": "weird_device",
		"definition": {"exposes": [{"type": "composite", "property": "color"}]}
	}`)

	d, caps := parseDeviceEntry(raw)
	require.NotNil(t, d)
	assert.Empty(t, caps)
	assert.Empty(t, d.stateKeys)
}

func newTestAdapter(client *fakeMQTTClient) *Adapter {
	return &Adapter{client: client, prefix: "zigbee2mqtt/", devices: make(map[string]*device)}
}

func TestHandleUnsupportedActionIsNoop(t *testing.T) {
	client := &fakeMQTTClient{}
	a := newTestAdapter(client)
	a.Handle(nil, &event.Command{Action: "reboot", Params: multimap.New()})
	assert.Empty(t, client.published)
}

func TestHandleSetStateUnknownDeviceIsNoop(t *testing.T) {
	client := &fakeMQTTClient{}
	a := newTestAdapter(client)
	cmd := &event.Command{Action: "set_state", Params: multimap.New()}
	cmd.Params.Append("device", "no_such_device")
	cmd.Params.Append("value", "ON")

	a.Handle(nil, cmd)
	assert.Empty(t, client.published)
}

func TestHandleSetStatePublishesRelayKey(t *testing.T) {
	client := &fakeMQTTClient{}
	a := newTestAdapter(client)
	a.devices["kitchen_switch"] = &device{
		friendlyName: "kitchen_switch",
		ieeeAddress:  "0x1",
		stateKeys:    map[string]string{"relay": "state"},
	}

	cmd := &event.Command{Action: "set_state", Params: multimap.New()}
	cmd.Params.Append("device", "kitchen_switch")
	cmd.Params.Append("value", "ON")
	a.Handle(nil, cmd)

	require.Len(t, client.published, 1)
	assert.Equal(t, "zigbee2mqtt/kitchen_switch/set", client.published[0].topic)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(client.published[0].payload, &payload))
	assert.Equal(t, "ON", payload["state"])
}

func TestHandleSetStateDefaultsToStateKeyWithoutRelay(t *testing.T) {
	client := &fakeMQTTClient{}
	a := newTestAdapter(client)
	a.devices["sensor"] = &device{
		friendlyName: "sensor",
		ieeeAddress:  "0x2",
		stateKeys:    map[string]string{"temperature": "temperature"},
	}

	cmd := &event.Command{Action: "set_state", Params: multimap.New()}
	cmd.Params.Append("device", "sensor")
	cmd.Params.Append("value", "21.5")
	a.Handle(nil, cmd)

	require.Len(t, client.published, 1)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(client.published[0].payload, &payload))
	assert.Equal(t, "21.5", payload["state"])
}

func TestExitDisconnectsOpenConnection(t *testing.T) {
	client := &fakeMQTTClient{connected: true}
	a := newTestAdapter(client)
	a.Exit(nil)
	assert.False(t, client.connected)
}

func TestExitIsNoopWhenAlreadyDisconnected(t *testing.T) {
	client := &fakeMQTTClient{connected: false}
	a := newTestAdapter(client)
	a.Exit(nil)
	assert.False(t, client.connected)
}
