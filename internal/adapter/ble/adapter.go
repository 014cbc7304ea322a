package ble

import (
	"encoding/hex"
	"fmt"
	"log"

	"github.com/hackerspacekrk/iotm/internal/codec"
	"github.com/hackerspacekrk/iotm/internal/event"
	"github.com/hackerspacekrk/iotm/internal/rules"
	"github.com/hackerspacekrk/iotm/internal/session"
	"github.com/hackerspacekrk/iotm/internal/tags"
)

const (
	keyMAC        = "mac"
	keyName       = "name"
	keyServUUID   = "serv_uuid"
	keyCharUUID   = "char_uuid"
	keyDescUUID   = "desc_uuid"
	keyPublicAddr = "public_addr"
	keyConnect    = "connected"
	keyIsPrimary  = "is_primary"
	keyCFlag      = "c_flag"
	keyIsNotify   = "is_notification"
	keyData       = "data"
	keyStatusCode = "s_code"
	keyDecodeType = "decode_type"
)

func init() {
	session.RegisterAdapter("ble", Construct)
}

// newRadio is overridden in tests to avoid depending on a real BLE stack.
// It always returns a SimRadio; otherConfig is not consulted.
var newRadio = func(otherConfig map[string]string) Radio {
	return NewSimRadio()
}

// Adapter bridges a Radio to the core's event/command model.
type Adapter struct {
	radio Radio
}

// Construct satisfies session.Constructor.
func Construct(s *session.Session, otherConfig map[string]string) (session.Adapter, error) {
	a := &Adapter{radio: newRadio(otherConfig)}
	if err := a.radio.Init(a.eventCallback(s)); err != nil {
		return nil, fmt.Errorf("ble: radio init failed: %w", err)
	}
	a.reloadScan(s)
	return a, nil
}

// Update fires on an other_config modify; the source's handler is a no-op
// here too (iotm_ble_handler_update).
func (a *Adapter) Update(s *session.Session) {}

// TagUpdate reprograms the discovery scan, mirroring
// iotm_ble_handler_tag_update: a tag referenced by a "mac" filter may have
// changed its resolved value set.
func (a *Adapter) TagUpdate(s *session.Session) {
	a.reloadScan(s)
}

// RuleUpdate reprograms the discovery scan only when the changed rule
// binds to "ble_advertised" — mirroring iotm_ble_handler_rule_update,
// which ignores rule changes on every other event name.
func (a *Adapter) RuleUpdate(s *session.Session, kind session.RuleChangeKind, rule *rules.Rule) {
	if rule == nil || rule.EventName != "ble_advertised" {
		return
	}
	a.reloadScan(s)
}

// Periodic is a no-op, mirroring iotm_ble_handler_periodic.
func (a *Adapter) Periodic(s *session.Session) {}

// Exit tears down the radio.
func (a *Adapter) Exit(s *session.Session) {
	if err := a.radio.Exit(); err != nil {
		log.Printf("[ble] radio exit failed: %v", err)
	}
}

// reloadScan rebuilds the discovery scan's MAC/service filter set from
// every currently-installed "ble_advertised" rule's filter, mirroring
// reload_scan: if no such rules exist, disable the scan; if a filter key
// carries a wildcard candidate, that dimension scans unfiltered.
func (a *Adapter) reloadScan(s *session.Session) {
	ev := s.GetEvent("ble_advertised")
	if ev == nil {
		log.Printf("[ble] no rules for ble_advertised, disabling scan")
		if err := a.radio.DisableDiscoveryScan(); err != nil {
			log.Printf("[ble] disable scan failed: %v", err)
		}
		return
	}

	var macs, uuids []string
	macWildcard, uuidWildcard := false, false
	ev.ForEachUniqueFilterValue(tagStoreOf(s), func(key, value string) {
		switch key {
		case keyMAC:
			if value == "*" {
				macWildcard = true
				return
			}
			macs = append(macs, value)
		case keyServUUID:
			if value == "*" {
				uuidWildcard = true
				return
			}
			uuids = append(uuids, value)
		}
	})

	if len(macs) == 0 && len(uuids) == 0 && !macWildcard && !uuidWildcard {
		log.Printf("[ble] no mac/service filters of interest, disabling scan")
		if err := a.radio.DisableDiscoveryScan(); err != nil {
			log.Printf("[ble] disable scan failed: %v", err)
		}
		return
	}

	params := ScanParams{}
	if !macWildcard {
		params.MACFilter = macs
	}
	if !uuidWildcard {
		params.UUIDFilter = uuids
	}
	if err := a.radio.EnableDiscoveryScan(params); err != nil {
		log.Printf("[ble] enable scan failed: %v", err)
	}
}

// tagStoreOf is a narrow accessor used only so reloadScan can call
// ForEachUniqueFilterValue, which needs the tag store for template
// expansion; Session exposes it indirectly via ForEachTag, but
// ForEachUniqueFilterValue needs a *tags.Store itself, so this builds a
// snapshot copy of every (tag, value) pair the session currently sees.
func tagStoreOf(s *session.Session) *tags.Store {
	snapshot := tags.New()
	s.ForEachTag("", func(tagName, value string) {
		snapshot.Add(tagName, []string{value})
	})
	return snapshot
}

// eventCallback adapts a Radio.Event into a PluginEvent and emits it,
// mirroring event_cb: build the event, add type-specific params via the
// per-kind helper, always add "mac", then emit.
func (a *Adapter) eventCallback(s *session.Session) EventCallback {
	return func(ev Event) {
		pe := s.PluginEventNew(ev.Kind.ovsdbType())
		addEventParams(pe, ev)
		pe.Params.Append(keyMAC, ev.MAC)
		s.Emit(pe)
	}
}

func addEventParams(pe *event.PluginEvent, ev Event) {
	switch ev.Kind {
	case EvAdvertised:
		if ev.AdvertisedName != "" {
			pe.Params.Append(keyName, ev.AdvertisedName)
		}
		for _, uuid := range ev.AdvertisedServices {
			pe.Params.Append(keyServUUID, uuid)
		}
	case EvConnected, EvDisconnected:
		pe.Params.Append(keyPublicAddr, boolToStr(ev.ConnectParams.PublicAddr))
		pe.Params.Append(keyConnect, ev.ConnectStatus.String())
	case EvServiceDiscovered:
		pe.Params.Append(keyServUUID, ev.ServiceUUID)
		pe.Params.Append(keyIsPrimary, boolToStr(ev.ServiceIsPrimary))
	case EvCharacteristicDiscovered:
		pe.Params.Append(keyServUUID, ev.CharServUUID)
		pe.Params.Append(keyCharUUID, ev.CharUUID)
		for _, f := range ev.CharFlags {
			pe.Params.Append(keyCFlag, f.String())
		}
	case EvDescriptorDiscovered:
		pe.Params.Append(keyCharUUID, ev.DescCharUUID)
		pe.Params.Append(keyDescUUID, ev.DescUUID)
	case EvCharacteristicUpdated:
		pe.Params.Append(keyCharUUID, ev.CharUUID)
		pe.Params.Append(keyIsNotify, boolToStr(ev.IsNotification))
		if len(ev.Data) > 0 {
			pe.Params.Append(keyData, hex.EncodeToString(ev.Data))
		}
	case EvCharacteristicWriteSuccess:
		pe.Params.Append(keyStatusCode, fmt.Sprintf("%d", ev.StatusCode))
		pe.Params.Append(keyCharUUID, ev.CharUUID)
		if len(ev.Data) > 0 {
			pe.Params.Append(keyData, hex.EncodeToString(ev.Data))
		}
	case EvDescriptorWriteSuccess:
		pe.Params.Append(keyStatusCode, fmt.Sprintf("%d", ev.StatusCode))
		pe.Params.Append(keyCharUUID, ev.CharUUID)
		pe.Params.Append(keyDescUUID, ev.DescUUID)
		if len(ev.Data) > 0 {
			pe.Params.Append(keyData, hex.EncodeToString(ev.Data))
		}
	case EvCharacteristicNotifySuccess:
		pe.Params.Append(keyStatusCode, fmt.Sprintf("%d", ev.StatusCode))
		pe.Params.Append(keyCharUUID, ev.CharUUID)
	}
}

func boolToStr(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// Handle routes a Command to the matching radio call by its Action name,
// mirroring ble_cmd_from_string + iotm_ble_handle's dispatch table.
func (a *Adapter) Handle(s *session.Session, cmd *event.Command) {
	mac, _ := cmd.Params.GetSingle(keyMAC)

	var err error
	switch cmd.Action {
	case "ble_connect_device":
		public := true
		if v, ok := cmd.Params.GetSingle(keyPublicAddr); ok {
			public = v == "true"
		}
		err = a.radio.ConnectDevice(mac, ConnectParams{PublicAddr: public})
	case "ble_disconnect_device":
		err = a.radio.DisconnectDevice(mac)
	case "ble_discover_services":
		var uuids []string
		cmd.Params.ForEachTyped(keyServUUID, codec.Text, func(v any) {
			uuids = append(uuids, v.(string))
		}, nil)
		err = a.radio.DiscoverServices(mac, ServiceDiscoveryParams{UUIDs: uuids})
	case "ble_discover_characteristics":
		servUUID, _ := cmd.Params.GetSingle(keyServUUID)
		err = a.radio.DiscoverCharacteristics(mac, CharDiscoveryParams{ServUUID: servUUID})
	case "ble_enable_characteristic_notifications":
		charUUID, _ := cmd.Params.GetSingle(keyCharUUID)
		err = a.radio.EnableCharacteristicNotifications(mac, CharNotificationParams{CharUUID: charUUID})
	case "ble_disable_characteristic_notifications":
		charUUID, _ := cmd.Params.GetSingle(keyCharUUID)
		err = a.radio.DisableCharacteristicNotifications(mac, CharNotificationParams{CharUUID: charUUID})
	case "ble_read_characteristic":
		charUUID, _ := cmd.Params.GetSingle(keyCharUUID)
		err = a.radio.ReadCharacteristic(mac, CharReadParams{CharUUID: charUUID})
	case "ble_read_descriptor":
		charUUID, _ := cmd.Params.GetSingle(keyCharUUID)
		descUUID, _ := cmd.Params.GetSingle(keyDescUUID)
		err = a.radio.ReadDescriptor(mac, DescReadParams{CharUUID: charUUID, DescUUID: descUUID})
	case "ble_write_characteristic":
		charUUID, _ := cmd.Params.GetSingle(keyCharUUID)
		data, decErr := decodeCommandData(cmd)
		if decErr != nil {
			log.Printf("[ble] write_characteristic: %v", decErr)
			return
		}
		err = a.radio.WriteCharacteristic(mac, CharWriteParams{CharUUID: charUUID, Data: data})
	case "ble_write_descriptor":
		charUUID, _ := cmd.Params.GetSingle(keyCharUUID)
		descUUID, _ := cmd.Params.GetSingle(keyDescUUID)
		data, decErr := decodeCommandData(cmd)
		if decErr != nil {
			log.Printf("[ble] write_descriptor: %v", decErr)
			return
		}
		err = a.radio.WriteDescriptor(mac, DescWriteParams{CharUUID: charUUID, DescUUID: descUUID, Data: data})
	default:
		log.Printf("[ble] unimplemented command: %s", cmd.Action)
		return
	}
	if err != nil {
		log.Printf("[ble] command %q for device %q failed: %v", cmd.Action, mac, err)
	}
}

// decodeCommandData decodes the "data"/"decode_type" param pair, defaulting
// to hex, mirroring decode_data_helper.
func decodeCommandData(cmd *event.Command) ([]byte, error) {
	data, ok := cmd.Params.GetSingle(keyData)
	if !ok {
		return nil, fmt.Errorf("missing %q param", keyData)
	}
	decodeType, _ := cmd.Params.GetSingle(keyDecodeType)
	if decodeType == "UTF8" {
		return []byte(data), nil
	}
	v, err := codec.Decode(data, codec.ByteArray)
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
