package wampc

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config holds the settings a client can take from the environment.
type Config struct {
	// Router address. ENV: WAMP_URL
	URL string `env:"WAMP_URL,default=ws://localhost:8080/ws"`
	// Realm to join. ENV: WAMP_REALM
	Realm string `env:"WAMP_REALM,default=realm1"`
	// json, msgpack or cbor. ENV: WAMP_SERIALIZATION
	Serialization string `env:"WAMP_SERIALIZATION,default=json"`
	// ENV: WAMP_RECEIVE_TIMEOUT
	ReceiveTimeout time.Duration `env:"WAMP_RECEIVE_TIMEOUT,default=10s"`
	// ENV: WAMP_MAX_MESSAGE_SIZE
	MaxMessageSize int64 `env:"WAMP_MAX_MESSAGE_SIZE"`
	// ENV: WAMP_PING_INTERVAL
	PingInterval time.Duration `env:"WAMP_PING_INTERVAL"`
	// ENV: WAMP_IDLE_TIMEOUT
	IdleTimeout time.Duration `env:"WAMP_IDLE_TIMEOUT"`
	// ENV: WAMP_WRITE_TIMEOUT
	WriteTimeout time.Duration `env:"WAMP_WRITE_TIMEOUT,default=10s"`
	// Sent as authid in HELLO when set. ENV: WAMP_AUTHID
	AuthID string `env:"WAMP_AUTHID"`
	// ENV: WAMP_AGENT
	Agent string `env:"WAMP_AGENT,default=wampc"`
}

// ConfigFromEnv reads a Config from the environment, applying the defaults
// above to unset variables. A variable that does not parse is an error.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return Config{}, fmt.Errorf("wampc: config: %w", err)
	}
	if _, err := cfg.serialization(); err != nil {
		return Config{}, fmt.Errorf("wampc: config: %w", err)
	}
	return cfg, nil
}

func (c Config) serialization() (Serialization, error) {
	return ParseSerialization(c.Serialization)
}

// ConnectionConfig returns the transport settings of c.
func (c Config) ConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		MaxMsgSize:   c.MaxMessageSize,
		IdleTimeout:  c.IdleTimeout,
		PingInterval: c.PingInterval,
		WriteTimeout: c.WriteTimeout,
	}
}

// SessionOptions returns the session settings of c.
func (c Config) SessionOptions() []SessionOption {
	opts := []SessionOption{WithReceiveTimeout(c.ReceiveTimeout)}
	if c.Agent != "" {
		opts = append(opts, WithAgent(c.Agent))
	}
	if c.AuthID != "" {
		opts = append(opts, WithAuth(c.AuthID, nil))
	}
	return opts
}
