// Package zigbee implements the Zigbee adapter (§4.12): a session.Adapter
// bridging zigbee2mqtt over MQTT to the core's event/command model.
// Discovered devices become "zigbee_device_annced" events carrying the
// device's friendly name and exposed capability keys; incoming state
// updates become "zigbee_state_changed" events; outgoing Commands with
// action "set_state" publish a zigbee2mqtt .../set message.
//
// Grounded on the teacher's Zigbee2MQTTMapper (mqtt_mapper_zigbee2mqtt.go)
// for the bridge/devices discovery parse and the exposure-to-capability
// classification table, and on MQTTAdapter (mqtt_adapter.go) for the
// paho.mqtt.golang client setup/subscribe pattern — both repurposed from
// building a virtual-device list for a web dashboard to emitting
// PluginEvents through a Session.
package zigbee

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/hackerspacekrk/iotm/internal/event"
	"github.com/hackerspacekrk/iotm/internal/session"
)

func init() {
	session.RegisterAdapter("zigbee", Construct)
}

// exposure describes one zigbee2mqtt "exposes" entry this adapter turns
// into an announced capability, keyed by "<type>:<property>".
type exposure struct {
	capability string
	stateKey   string
}

var knownExposures = map[string]exposure{
	"switch:state":         {"relay", "state"},
	"numeric:temperature":  {"temperature", "temperature"},
	"numeric:humidity":     {"humidity", "humidity"},
	"numeric:co":           {"co", "co"},
	"numeric:gas_value":    {"gas", "gas_value"},
	"binary:contact":       {"contact", "contact"},
	"binary:occupancy":     {"occupancy", "occupancy"},
	"numeric:illuminance":  {"illuminance", "illuminance"},
	"numeric:battery":      {"battery", "battery"},
}

type device struct {
	friendlyName string
	ieeeAddress  string
	stateKeys    map[string]string // capability -> JSON state key
}

// Adapter bridges zigbee2mqtt to the core.
type Adapter struct {
	client mqtt.Client
	prefix string

	mu      sync.RWMutex
	devices map[string]*device // keyed by friendly name
}

// Construct satisfies session.Constructor, wired in by the registry when an
// IOT_Manager_Config row is created whose plugin column (or, if that is
// empty, whose handler name) is "zigbee".
func Construct(s *session.Session, otherConfig map[string]string) (session.Adapter, error) {
	broker := otherConfig["mqtt_broker"]
	if broker == "" {
		return nil, fmt.Errorf("zigbee: other_config missing mqtt_broker")
	}
	prefix := otherConfig["zigbee2mqtt_prefix"]
	if prefix == "" {
		prefix = "zigbee2mqtt/"
	}

	a := &Adapter{prefix: prefix, devices: make(map[string]*device)}

	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("iotm-zigbee-%d", time.Now().UnixNano())).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetKeepAlive(30 * time.Second).
		SetConnectTimeout(8 * time.Second)
	if u := otherConfig["mqtt_username"]; u != "" {
		opts.SetUsername(u)
	}
	if p := otherConfig["mqtt_password"]; p != "" {
		opts.SetPassword(p)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Printf("[zigbee] connection lost: %v", err)
	}
	opts.OnConnect = func(c mqtt.Client) {
		log.Printf("[zigbee] connected to broker")
		if token := c.Subscribe(prefix+"bridge/devices", 0, a.handleDevicesMessage(s)); !token.WaitTimeout(5*time.Second) || token.Error() != nil {
			log.Printf("[zigbee] failed to subscribe to bridge/devices")
		}
		if token := c.Subscribe(prefix+"#", 0, a.handleStateMessage(s)); !token.WaitTimeout(5*time.Second) || token.Error() != nil {
			log.Printf("[zigbee] failed to subscribe to %s#", prefix)
		}
	}

	a.client = mqtt.NewClient(opts)
	token := a.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("zigbee: mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("zigbee: mqtt connect failed: %w", err)
	}
	return a, nil
}

// Handle implements session.Adapter: the only command this adapter
// supports is "set_state", addressing a device by its "device" param and
// carrying the new value under "value".
func (a *Adapter) Handle(s *session.Session, cmd *event.Command) {
	if cmd.Action != "set_state" {
		log.Printf("[zigbee] unsupported action %q", cmd.Action)
		return
	}
	deviceName, ok := cmd.Params.GetSingle("device")
	if !ok {
		log.Printf("[zigbee] set_state missing \"device\" param")
		return
	}
	value, ok := cmd.Params.GetSingle("value")
	if !ok {
		log.Printf("[zigbee] set_state missing \"value\" param")
		return
	}

	a.mu.RLock()
	dev, ok := a.devices[deviceName]
	a.mu.RUnlock()
	if !ok {
		log.Printf("[zigbee] set_state: unknown device %q", deviceName)
		return
	}

	key := "state"
	if k, ok := dev.stateKeys["relay"]; ok {
		key = k
	}
	payload, err := json.Marshal(map[string]any{key: value})
	if err != nil {
		log.Printf("[zigbee] set_state: marshal failed: %v", err)
		return
	}

	topic := a.prefix + deviceName + "/set"
	token := a.client.Publish(topic, 0, false, payload)
	if token.Wait() && token.Error() != nil {
		log.Printf("[zigbee] set_state publish failed: %v", token.Error())
	}
}

// Exit disconnects the MQTT client on session teardown.
func (a *Adapter) Exit(s *session.Session) {
	if a.client != nil && a.client.IsConnectionOpen() {
		a.client.Disconnect(250)
	}
}

func (a *Adapter) handleDevicesMessage(s *session.Session) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		var raw []json.RawMessage
		if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
			log.Printf("[zigbee] bridge/devices unmarshal error: %v", err)
			return
		}
		for _, entry := range raw {
			d, caps := parseDeviceEntry(entry)
			if d == nil {
				continue
			}
			a.mu.Lock()
			a.devices[d.friendlyName] = d
			a.mu.Unlock()

			pe := s.PluginEventNew("zigbee_device_annced")
			pe.Params.Append("mac", d.ieeeAddress)
			pe.Params.Append("name", d.friendlyName)
			for _, c := range caps {
				pe.Params.Append("capability", c)
			}
			s.Emit(pe)
		}
	}
}

func (a *Adapter) handleStateMessage(s *session.Session) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		topic := msg.Topic()
		if !strings.HasPrefix(topic, a.prefix) || strings.HasPrefix(topic, a.prefix+"bridge/") {
			return
		}
		name := strings.TrimPrefix(topic, a.prefix)

		a.mu.RLock()
		d, ok := a.devices[name]
		a.mu.RUnlock()
		if !ok {
			return
		}

		var parsed map[string]any
		if err := json.Unmarshal(msg.Payload(), &parsed); err != nil {
			log.Printf("[zigbee] state payload unmarshal error on %s: %v", topic, err)
			return
		}

		for capability, key := range d.stateKeys {
			v, present := parsed[key]
			if !present {
				continue
			}
			pe := s.PluginEventNew("zigbee_state_changed")
			pe.Params.Append("mac", d.ieeeAddress)
			pe.Params.Append("name", d.friendlyName)
			pe.Params.Append("capability", capability)
			pe.Params.Append("value", fmt.Sprintf("%v", v))
			s.Emit(pe)
		}
	}
}

func parseDeviceEntry(raw json.RawMessage) (*device, []string) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil
	}
	friendlyName, _ := m["friendly_name"].(string)
	if friendlyName == "" {
		return nil, nil
	}
	ieee, _ := m["ieee_address"].(string)

	defMap, _ := m["definition"].(map[string]any)
	exposes, _ := defMap["exposes"].([]any)

	d := &device{friendlyName: friendlyName, ieeeAddress: ieee, stateKeys: map[string]string{}}
	var caps []string
	for _, exp := range exposes {
		expMap, ok := exp.(map[string]any)
		if !ok {
			continue
		}
		expType, _ := expMap["type"].(string)
		property, _ := expMap["property"].(string)
		mapKey := expType + ":" + property
		if expType == "switch" {
			mapKey = "switch:state"
		}
		if known, ok := knownExposures[mapKey]; ok {
			d.stateKeys[known.capability] = known.stateKey
			caps = append(caps, known.capability)
		}
	}
	return d, caps
}
