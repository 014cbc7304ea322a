package ble

import "sync"

// SimRadio is a software BLE radio used in tests and anywhere no real
// Bluetooth stack is available: every command call records its
// invocation, and test code drives EventCallback directly to simulate
// target-layer activity. It has no counterpart in the source, which always
// assumed a real stack; this package's Radio boundary makes that
// assumption replaceable rather than load-bearing.
type SimRadio struct {
	mu sync.Mutex
	cb EventCallback

	ScanEnabled bool
	LastScan    ScanParams

	Calls []string
}

// NewSimRadio constructs an idle SimRadio.
func NewSimRadio() *SimRadio {
	return &SimRadio{}
}

func (r *SimRadio) record(call string) {
	r.Calls = append(r.Calls, call)
}

// Init stores cb for later use by Emit.
func (r *SimRadio) Init(cb EventCallback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cb = cb
	return nil
}

// Exit clears the callback.
func (r *SimRadio) Exit() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cb = nil
	return nil
}

// Emit synchronously invokes the stored callback, simulating a
// target-layer event arriving on the loop goroutine.
func (r *SimRadio) Emit(ev Event) {
	r.mu.Lock()
	cb := r.cb
	r.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

func (r *SimRadio) EnableDiscoveryScan(params ScanParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ScanEnabled = true
	r.LastScan = params
	r.record("enable_scan")
	return nil
}

func (r *SimRadio) DisableDiscoveryScan() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ScanEnabled = false
	r.record("disable_scan")
	return nil
}

func (r *SimRadio) ConnectDevice(mac string, params ConnectParams) error {
	r.record("connect:" + mac)
	return nil
}

func (r *SimRadio) DisconnectDevice(mac string) error {
	r.record("disconnect:" + mac)
	return nil
}

func (r *SimRadio) DiscoverServices(mac string, params ServiceDiscoveryParams) error {
	r.record("discover_services:" + mac)
	return nil
}

func (r *SimRadio) DiscoverCharacteristics(mac string, params CharDiscoveryParams) error {
	r.record("discover_characteristics:" + mac)
	return nil
}

func (r *SimRadio) ReadCharacteristic(mac string, params CharReadParams) error {
	r.record("read_characteristic:" + mac)
	return nil
}

func (r *SimRadio) WriteCharacteristic(mac string, params CharWriteParams) error {
	r.record("write_characteristic:" + mac)
	return nil
}

func (r *SimRadio) EnableCharacteristicNotifications(mac string, params CharNotificationParams) error {
	r.record("enable_notifications:" + mac)
	return nil
}

func (r *SimRadio) DisableCharacteristicNotifications(mac string, params CharNotificationParams) error {
	r.record("disable_notifications:" + mac)
	return nil
}

func (r *SimRadio) ReadDescriptor(mac string, params DescReadParams) error {
	r.record("read_descriptor:" + mac)
	return nil
}

func (r *SimRadio) WriteDescriptor(mac string, params DescWriteParams) error {
	r.record("write_descriptor:" + mac)
	return nil
}
