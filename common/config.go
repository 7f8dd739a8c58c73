package common

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultAllowedOrigin is the browser origin allowed when FRONTEND_URL is not set
const DefaultAllowedOrigin = "http://localhost:3000"

// ===============================================================================
// NATS Related Config

// NATSReconnectConfig defines reconnect parameters
type NATSReconnectConfig struct {
	// MaxAttempts sets the max number of reconnect attempts (-1 is unlimited)
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts" validate:"gte=-1"`
	// WaitInterval is the duration between reconnect attempts in seconds
	WaitInterval int `mapstructure:"wait_interval_sec" json:"wait_interval_sec" validate:"gte=1"`
}

// NATSConfig defines parameters for connecting to NATS server
type NATSConfig struct {
	// ServerURI is the NATS connection URI
	ServerURI string `mapstructure:"server_uri" json:"server_uri" validate:"required,uri"`
	// ConnectTimeout is the max duration for connecting to NATS server in seconds
	ConnectTimeout int `mapstructure:"connect_timeout_sec" json:"connect_timeout_sec" validate:"gte=1"`
	// Reconnect defines reconnect parameters
	Reconnect NATSReconnectConfig `mapstructure:"reconnect" json:"reconnect" validate:"required"`
}

// NATSIngressConfig defines the NATS subscription through which out-of-process
// producers trigger broadcasts
type NATSIngressConfig struct {
	// Enabled whether to subscribe to NATS for broadcast events
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// SubjectPrefix events are read from "<SubjectPrefix>.<event kind>"
	SubjectPrefix string `mapstructure:"subject_prefix" json:"subject_prefix" validate:"required"`
	// QueueGroup optional NATS queue group to subscribe with
	QueueGroup string `mapstructure:"queue_group" json:"queue_group"`
	// NATS are the NATS connection parameters
	NATS NATSConfig `mapstructure:"nats" json:"nats" validate:"required"`
}

// IngressConfig defines the non-HTTP event ingress paths
type IngressConfig struct {
	// NATS is the NATS subscription ingress
	NATS NATSIngressConfig `mapstructure:"nats" json:"nats" validate:"required"`
}

// ===============================================================================
// HTTP Related Config

// HTTPServerConfig defines the HTTP server parameters
type HTTPServerConfig struct {
	// ListenOn is the interface the HTTP server will listen on
	ListenOn string `mapstructure:"listen_on" json:"listen_on" validate:"required,ip"`
	// Port is the port the HTTP server will listen on
	Port uint16 `mapstructure:"listen_port" json:"listen_port" validate:"required,gt=0,lt=65536"`
	// ReadTimeout is the maximum duration for reading the entire
	// request, including the body in seconds. A zero or negative
	// value means there will be no timeout.
	ReadTimeout int `mapstructure:"read_timeout_sec" json:"read_timeout_sec" validate:"gte=0"`
	// WriteTimeout is the maximum duration before timing out
	// writes of the response in seconds. A zero or negative value
	// means there will be no timeout.
	WriteTimeout int `mapstructure:"write_timeout_sec" json:"write_timeout_sec" validate:"gte=0"`
	// IdleTimeout is the maximum amount of time to wait for the
	// next request when keep-alives are enabled in seconds. If
	// IdleTimeout is zero, the value of ReadTimeout is used. If
	// both are zero, there is no timeout.
	IdleTimeout int `mapstructure:"idle_timeout_sec" json:"idle_timeout_sec" validate:"gte=0"`
}

// HTTPRequestLogging defines HTTP request logging parameters
type HTTPRequestLogging struct {
	// RequestIDHeader is the HTTP header containing the API request ID
	RequestIDHeader string `mapstructure:"request_id_header" json:"request_id_header"`
	// DoNotLogHeaders is the list of headers to not include in logging metadata
	DoNotLogHeaders []string `mapstructure:"do_not_log_headers" json:"do_not_log_headers"`
}

// HTTPConfig defines HTTP API / server parameters
type HTTPConfig struct {
	// Server defines HTTP server parameters
	Server HTTPServerConfig `mapstructure:"server_config" json:"server_config" validate:"required"`
	// Logging defines operation logging parameters
	Logging HTTPRequestLogging `mapstructure:"logging_config" json:"logging_config" validate:"required"`
}

// EndpointConfig defines REST API endpoint config
type EndpointConfig struct {
	// PathPrefix is the end-point path prefix for the REST APIs
	PathPrefix string `mapstructure:"path_prefix" json:"path_prefix" validate:"required"`
}

// ===============================================================================
// Real-time Channel Related Config

// RealtimeConfig defines the websocket channel and hub parameters
type RealtimeConfig struct {
	// Path is the HTTP path clients open the websocket channel on
	Path string `mapstructure:"path" json:"path" validate:"required,startswith=/"`
	// AllowedOrigin is the browser origin allowed to open cross-origin channels.
	// Read from FRONTEND_URL when set.
	AllowedOrigin string `mapstructure:"allowed_origin" json:"allowed_origin" validate:"required"`
	// AllowedHeaders are the request headers permitted on cross-origin requests
	AllowedHeaders []string `mapstructure:"allowed_headers" json:"allowed_headers" validate:"required,min=1"`
	// AllowedMethods are the methods permitted on cross-origin requests
	AllowedMethods []string `mapstructure:"allowed_methods" json:"allowed_methods" validate:"required,min=1"`
	// AllowCredentials whether credentialed cross-origin requests are allowed
	AllowCredentials bool `mapstructure:"allow_credentials" json:"allow_credentials"`
	// PingInterval is the heartbeat interval in seconds
	PingInterval int `mapstructure:"ping_interval_sec" json:"ping_interval_sec" validate:"gte=1"`
	// PingTimeout is how long a silent connection is kept before it is declared
	// dead, in seconds
	PingTimeout int `mapstructure:"ping_timeout_sec" json:"ping_timeout_sec" validate:"gtfield=PingInterval"`
	// WriteTimeout is the deadline for a single write to a client in seconds
	WriteTimeout int `mapstructure:"write_timeout_sec" json:"write_timeout_sec" validate:"gte=1"`
	// ReadLimit is the max size of one inbound client frame in bytes
	ReadLimit int64 `mapstructure:"read_limit_bytes" json:"read_limit_bytes" validate:"gte=128"`
	// SendBuffer is the per-connection outbound frame buffer depth
	SendBuffer int `mapstructure:"send_buffer" json:"send_buffer" validate:"gte=1"`
	// TaskBuffer is the hub event loop's task buffer depth
	TaskBuffer int `mapstructure:"task_buffer" json:"task_buffer" validate:"gte=1"`
}

// PingIntervalDuration PingInterval as time.Duration
func (c RealtimeConfig) PingIntervalDuration() time.Duration {
	return time.Second * time.Duration(c.PingInterval)
}

// PingTimeoutDuration PingTimeout as time.Duration
func (c RealtimeConfig) PingTimeoutDuration() time.Duration {
	return time.Second * time.Duration(c.PingTimeout)
}

// WriteTimeoutDuration WriteTimeout as time.Duration
func (c RealtimeConfig) WriteTimeoutDuration() time.Duration {
	return time.Second * time.Duration(c.WriteTimeout)
}

// ===============================================================================
// Complete Config

// SystemConfig defines the complete system config
type SystemConfig struct {
	// HTTPSetting is the HTTP API / server parameters
	HTTPSetting HTTPConfig `mapstructure:"api_server" json:"api_server" validate:"required"`
	// Endpoints is the API endpoint config parameters
	Endpoints EndpointConfig `mapstructure:"endpoint_config" json:"endpoint_config" validate:"required"`
	// Realtime are the websocket channel / hub parameters
	Realtime RealtimeConfig `mapstructure:"realtime" json:"realtime" validate:"required"`
	// Ingress are the non-HTTP event ingress parameters
	Ingress IngressConfig `mapstructure:"ingress" json:"ingress" validate:"required"`
}

// ===============================================================================

// InstallDefaultConfigValues installs default config parameters in viper
func InstallDefaultConfigValues() {
	// Default HTTP server settings
	viper.SetDefault("endpoint_config.path_prefix", "/")
	viper.SetDefault("api_server.server_config.listen_on", "0.0.0.0")
	viper.SetDefault("api_server.server_config.listen_port", 3001)
	viper.SetDefault("api_server.server_config.read_timeout_sec", 60)
	// Websocket writes carry their own deadline
	viper.SetDefault("api_server.server_config.write_timeout_sec", 0)
	viper.SetDefault("api_server.server_config.idle_timeout_sec", 600)
	viper.SetDefault("api_server.logging_config.request_id_header", "Rentalhub-Request-ID")
	viper.SetDefault(
		"api_server.logging_config.do_not_log_headers", []string{
			"WWW-Authenticate", "Authorization", "Proxy-Authenticate", "Proxy-Authorization",
		},
	)

	// Default real-time channel settings
	viper.SetDefault("realtime.path", "/ws")
	viper.SetDefault("realtime.allowed_origin", DefaultAllowedOrigin)
	_ = viper.BindEnv("realtime.allowed_origin", "FRONTEND_URL")
	viper.SetDefault(
		"realtime.allowed_headers", []string{"Authorization", "Content-Type"},
	)
	viper.SetDefault("realtime.allowed_methods", []string{"GET", "POST"})
	viper.SetDefault("realtime.allow_credentials", true)
	viper.SetDefault("realtime.ping_interval_sec", 25)
	viper.SetDefault("realtime.ping_timeout_sec", 60)
	viper.SetDefault("realtime.write_timeout_sec", 10)
	viper.SetDefault("realtime.read_limit_bytes", 4096)
	viper.SetDefault("realtime.send_buffer", 64)
	viper.SetDefault("realtime.task_buffer", 256)

	// Default NATS ingress settings
	viper.SetDefault("ingress.nats.enabled", false)
	viper.SetDefault("ingress.nats.subject_prefix", "rentalhub.events")
	viper.SetDefault("ingress.nats.queue_group", "")
	viper.SetDefault("ingress.nats.nats.server_uri", "nats://127.0.0.1:4222")
	viper.SetDefault("ingress.nats.nats.connect_timeout_sec", 30)
	viper.SetDefault("ingress.nats.nats.reconnect.max_attempts", -1)
	viper.SetDefault("ingress.nats.nats.reconnect.wait_interval_sec", 15)
}
