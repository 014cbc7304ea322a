// Package config defines IoTM's YAML-configured ambient settings:
// everything needed to reach the configuration store, the MQTT broker,
// and the admin HTTP surface. Rule/tag/session data itself never lives
// here — that is entirely store-resident (§4.8).
//
// Grounded on the teacher's Config/MustLoadConfig (config.go,
// config_loader.go): same goccy/go-yaml decode, same secret-from-file
// indirection and candidate-path search, same per-field validation
// warnings. Unlike the teacher, the loaded value is returned to the
// caller rather than cached in a package-level global — per §9's explicit
// "no per-process globals" design note, Load's result is threaded
// through main() by the caller instead.
package config

// Config is IoTM's top-level configuration.
type Config struct {
	Store      StoreConfig `yaml:"store"`
	MQTT       MQTTConfig  `yaml:"mqtt"`
	Admin      AdminConfig `yaml:"admin"`
	AdapterDir string      `yaml:"adapter_dir"`
}

// StoreConfig locates the sqlite-backed configuration store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// MQTTConfig is the broker connection used for the report transport and
// any MQTT-backed adapter (zigbee2mqtt).
type MQTTConfig struct {
	Broker       string `yaml:"broker"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PasswordFile string `yaml:"password_file"`
	ClientID     string `yaml:"client_id"`
}

// AdminConfig configures the admin HTTP/WS surface and its OIDC guard.
type AdminConfig struct {
	ListenAddress string      `yaml:"listen_address"`
	Oidc          *OidcConfig `yaml:"oidc"`
}

// OidcConfig protects the admin surface's write-back endpoints.
type OidcConfig struct {
	ClientID         string   `yaml:"client_id"`
	ClientSecret     string   `yaml:"client_secret"`
	ClientSecretFile string   `yaml:"client_secret_file"`
	IssuerURL        string   `yaml:"issuer_url"`
	ExtraScopes      []string `yaml:"extra_scopes"`
	UsernameClaim    string   `yaml:"username_claim"`
}
