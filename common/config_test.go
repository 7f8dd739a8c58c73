package common

import (
	"bytes"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestViperConfigParsing(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	validate := validator.New()
	viper.Reset()
	defer viper.Reset()

	// Case 0: parse config with no defaults in place
	{
		var cfg SystemConfig
		assert.Nil(viper.Unmarshal(&cfg))
		assert.NotNil(validate.Struct(&cfg))
	}

	// Case 1: load the configs
	{
		var cfg SystemConfig
		InstallDefaultConfigValues()
		assert.Nil(viper.Unmarshal(&cfg))
		assert.Nil(validate.Struct(&cfg))
		assert.Equal("/ws", cfg.Realtime.Path)
		assert.Equal(DefaultAllowedOrigin, cfg.Realtime.AllowedOrigin)
		assert.Contains(cfg.Realtime.AllowedHeaders, "Authorization")
		assert.True(cfg.Realtime.AllowCredentials)
		assert.Equal(time.Second*25, cfg.Realtime.PingIntervalDuration())
		assert.Equal(time.Second*60, cfg.Realtime.PingTimeoutDuration())
		assert.False(cfg.Ingress.NATS.Enabled)
	}

	// Case 2: allowed origin from the environment
	{
		t.Setenv("FRONTEND_URL", "https://rent.example.com")
		var cfg SystemConfig
		assert.Nil(viper.Unmarshal(&cfg))
		assert.Nil(validate.Struct(&cfg))
		assert.Equal("https://rent.example.com", cfg.Realtime.AllowedOrigin)
	}

	// Case 3: invalid config
	{
		config := []byte(`---
api_server:
  server_config:
    listen_on: 1243`)
		viper.SetConfigType("yaml")
		assert.Nil(viper.ReadConfig(bytes.NewBuffer(config)))
		var cfg SystemConfig
		assert.Nil(viper.Unmarshal(&cfg))
		assert.NotNil(validate.Struct(&cfg))
	}

	// Case 4: invalid config
	{
		config := []byte(`---
realtime:
  ping_interval_sec: 30
  ping_timeout_sec: 20`)
		viper.SetConfigType("yaml")
		assert.Nil(viper.ReadConfig(bytes.NewBuffer(config)))
		var cfg SystemConfig
		assert.Nil(viper.Unmarshal(&cfg))
		assert.NotNil(validate.Struct(&cfg))
	}

	// Case 5: valid override
	{
		config := []byte(`---
realtime:
  path: /socket
  send_buffer: 8
ingress:
  nats:
    enabled: true
    subject_prefix: fleet.events`)
		viper.SetConfigType("yaml")
		assert.Nil(viper.ReadConfig(bytes.NewBuffer(config)))
		var cfg SystemConfig
		assert.Nil(viper.Unmarshal(&cfg))
		assert.Nil(validate.Struct(&cfg))
		assert.Equal("/socket", cfg.Realtime.Path)
		assert.Equal(8, cfg.Realtime.SendBuffer)
		assert.True(cfg.Ingress.NATS.Enabled)
		assert.Equal("fleet.events", cfg.Ingress.NATS.SubjectPrefix)
		assert.Equal("nats://127.0.0.1:4222", cfg.Ingress.NATS.NATS.ServerURI)
	}
}
