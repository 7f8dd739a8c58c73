// Copyright 2021-2022 The rentalhub Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"context"
	"time"

	"github.com/alwitt/rentalhub/common"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
)

// NATSConnectParams NATS connection parameter
type NATSConnectParams struct {
	// ServerURI connect to NATS with URI
	ServerURI string `validate:"required,uri"`
	// ConnectTimeout max time to wait for connection
	ConnectTimeout time.Duration
	// MaxReconnectAttempt on connection failure, max number of reconnect
	// attempt. "-1" means infinite
	MaxReconnectAttempt int
	// ReconnectWait wait duration between reconnect attempts
	ReconnectWait time.Duration
	// OnDisconnectCallback callback on disconnect
	OnDisconnectCallback func(*nats.Conn, error)
	// OnReconnectCallback callback on reconnect
	OnReconnectCallback func(*nats.Conn)
	// OnCloseCallback callback on close
	OnCloseCallback func(*nats.Conn)
}

// NatsClient NATS client carrying broadcast events from out-of-process producers
type NatsClient struct {
	common.Component
	nc *nats.Conn
}

// Close flush then close the NATS client
func (c NatsClient) Close(ctxt context.Context) {
	if err := c.nc.FlushWithContext(ctxt); err != nil {
		log.WithError(err).WithFields(c.LogTags).Errorf("NATS flush failed")
	}
	c.nc.Close()
	log.WithFields(c.LogTags).Infof("Close NATS client")
}

// NATs fetch the NATS connection
func (c NatsClient) NATs() *nats.Conn {
	return c.nc
}

// ParamsFromConfig convert the NATS config section into connect parameters
func ParamsFromConfig(config common.NATSConfig) NATSConnectParams {
	return NATSConnectParams{
		ServerURI:           config.ServerURI,
		ConnectTimeout:      time.Second * time.Duration(config.ConnectTimeout),
		MaxReconnectAttempt: config.Reconnect.MaxAttempts,
		ReconnectWait:       time.Second * time.Duration(config.Reconnect.WaitInterval),
	}
}

// GetNATSClient define a new NATS client
func GetNATSClient(param NATSConnectParams) (*NatsClient, error) {
	if err := validator.New().Struct(&param); err != nil {
		return nil, err
	}
	logTags := log.Fields{
		"module":    "core",
		"component": "nats-client",
		"instance":  param.ServerURI,
	}
	options := []nats.Option{
		nats.Timeout(param.ConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(param.MaxReconnectAttempt),
		nats.ReconnectWait(param.ReconnectWait),
	}
	if param.OnDisconnectCallback != nil {
		options = append(options, nats.DisconnectErrHandler(param.OnDisconnectCallback))
	}
	if param.OnReconnectCallback != nil {
		options = append(options, nats.ReconnectHandler(param.OnReconnectCallback))
	}
	if param.OnCloseCallback != nil {
		options = append(options, nats.ClosedHandler(param.OnCloseCallback))
	}
	nc, err := nats.Connect(param.ServerURI, options...)
	if err != nil {
		log.WithError(err).WithFields(logTags).Errorf("NATS client connect failed")
		return nil, err
	}
	log.WithFields(logTags).Info("Created NATS client")
	return &NatsClient{Component: common.Component{LogTags: logTags}, nc: nc}, nil
}
