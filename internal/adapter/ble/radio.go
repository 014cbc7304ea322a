// Package ble implements the BLE adapter (§4.11): a session.Adapter
// translating target-layer BLE callbacks into PluginEvents and routed
// Commands into BLERadio calls, plus the discovery-scan refresh logic
// that reprograms hardware MAC/service filters whenever the rule or tag
// tables change.
//
// Grounded closely on original_source's iotm_ble_handler.c: the event/
// command dispatch tables (events_map/commands_map), the advertise-filter
// scan-parameter rebuild on tag_update/rule_update (reload_scan), and the
// per-event-type parameter-adding helpers (advertised_add,
// add_connected_filters, add_characteristic_updated, ...). The target
// layer itself (ble_init/ble_connect_device/...) is reference hardware
// code with no Go analogue in the example pack, so it is modeled as the
// Radio interface — a software/simulated implementation is supplied
// for tests, and a real implementation can be wired in without touching
// this package.
package ble

// ConnectParams mirrors ble_connect_params_t: the one published user-
// controllable field is the public/random address flag.
type ConnectParams struct {
	PublicAddr bool
}

// CharNotificationParams mirrors ble_characteristic_notification_params.
type CharNotificationParams struct {
	CharUUID string
}

// CharDiscoveryParams mirrors ble_characteristic_discovery_params_t.
type CharDiscoveryParams struct {
	ServUUID string
}

// ServiceDiscoveryParams mirrors ble_service_discovery_params_t: a set of
// service UUIDs to filter discovery to (empty means discover all).
type ServiceDiscoveryParams struct {
	UUIDs []string
}

// CharReadParams mirrors ble_read_characteristic_params_t.
type CharReadParams struct {
	CharUUID string
}

// DescReadParams mirrors ble_read_descriptor_params_t.
type DescReadParams struct {
	CharUUID string
	DescUUID string
}

// CharWriteParams mirrors ble_write_characteristic_params_t.
type CharWriteParams struct {
	CharUUID string
	Data     []byte
}

// DescWriteParams mirrors ble_write_descriptor_params_t.
type DescWriteParams struct {
	CharUUID string
	DescUUID string
	Data     []byte
}

// ScanParams mirrors ble_discovery_scan_params_t: the MAC/service-UUID
// filter sets a discovery scan should restrict to. A nil slice for either
// means "no filter" (the source's num_*_filters == 0, wildcard case).
type ScanParams struct {
	MACFilter  []string
	UUIDFilter []string
}

// ConnectionStatus enumerates ble_connect_t.status.
type ConnectionStatus int

const (
	ConnSuccess ConnectionStatus = iota
	ConnNotReady
	ConnFailed
	ConnInProgress
	ConnAlreadyConnected
	ConnServiceResolveFailure
)

func (s ConnectionStatus) String() string {
	switch s {
	case ConnSuccess:
		return "success"
	case ConnNotReady:
		return "not_ready"
	case ConnFailed:
		return "failed"
	case ConnInProgress:
		return "in_progress"
	case ConnAlreadyConnected:
		return "already_connected"
	case ConnServiceResolveFailure:
		return "service_resolve_failure"
	default:
		return "unknown"
	}
}

// CharFlag enumerates ble_C_Flags, the GATT characteristic property bits.
type CharFlag int

const (
	CharBroadcast CharFlag = iota
	CharRead
	CharWriteWithoutResponse
	CharWrite
	CharNotify
	CharIndicate
)

func (f CharFlag) String() string {
	switch f {
	case CharBroadcast:
		return "ble_char_broadcast"
	case CharRead:
		return "ble_char_read"
	case CharWriteWithoutResponse:
		return "ble_char_write_without_response"
	case CharWrite:
		return "ble_char_write"
	case CharNotify:
		return "ble_char_notify"
	case CharIndicate:
		return "ble_char_indicate"
	default:
		return "unknown"
	}
}

// Radio is the target-layer boundary: the BLE stack driver an adapter
// instance is bound to. EventCallback delivers asynchronous events back to
// the adapter; every other method issues a command to the stack.
type Radio interface {
	Init(cb EventCallback) error
	Exit() error

	EnableDiscoveryScan(params ScanParams) error
	DisableDiscoveryScan() error

	ConnectDevice(mac string, params ConnectParams) error
	DisconnectDevice(mac string) error

	DiscoverServices(mac string, params ServiceDiscoveryParams) error
	DiscoverCharacteristics(mac string, params CharDiscoveryParams) error

	ReadCharacteristic(mac string, params CharReadParams) error
	WriteCharacteristic(mac string, params CharWriteParams) error
	EnableCharacteristicNotifications(mac string, params CharNotificationParams) error
	DisableCharacteristicNotifications(mac string, params CharNotificationParams) error

	ReadDescriptor(mac string, params DescReadParams) error
	WriteDescriptor(mac string, params DescWriteParams) error
}

// EventKind enumerates event_type: the BLE events the radio reports back.
type EventKind int

const (
	EvUnknown EventKind = iota
	EvError
	EvAdvertised
	EvConnected
	EvDisconnected
	EvServiceDiscovered
	EvCharacteristicDiscovered
	EvDescriptorDiscovered
	EvCharacteristicUpdated
	EvDescriptorUpdated
	EvCharacteristicWriteSuccess
	EvDescriptorWriteSuccess
	EvCharacteristicNotifySuccess
)

// ovsdbType returns the event's iot_event name, mirroring ble_event_from_type.
func (k EventKind) ovsdbType() string {
	switch k {
	case EvError:
		return "ble_error"
	case EvAdvertised:
		return "ble_advertised"
	case EvConnected:
		return "ble_connected"
	case EvDisconnected:
		return "ble_disconnected"
	case EvServiceDiscovered:
		return "ble_serv_discovered"
	case EvCharacteristicDiscovered:
		return "ble_char_discovered"
	case EvDescriptorDiscovered:
		return "ble_desc_discovered"
	case EvCharacteristicUpdated:
		return "ble_char_updated"
	case EvDescriptorUpdated:
		return "ble_desc_updated"
	case EvCharacteristicWriteSuccess:
		return "ble_char_write_success"
	case EvDescriptorWriteSuccess:
		return "ble_desc_write_success"
	case EvCharacteristicNotifySuccess:
		return "ble_char_notify_success"
	default:
		return "ble_unknown"
	}
}

// Event is the payload a Radio hands to EventCallback. Only the fields
// relevant to Kind are populated; the rest are zero values.
type Event struct {
	Kind EventKind
	MAC  string

	AdvertisedName     string
	AdvertisedServices []string

	ConnectParams ConnectParams
	ConnectStatus ConnectionStatus

	ServiceUUID      string
	ServiceIsPrimary bool

	CharServUUID string
	CharUUID     string
	CharFlags    []CharFlag

	DescCharUUID string
	DescUUID     string

	IsNotification bool
	Data           []byte

	StatusCode int
}

// EventCallback is how a Radio reports asynchronous events.
type EventCallback func(ev Event)
