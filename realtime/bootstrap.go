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

// Package realtime holds the process wide broadcast hub
package realtime

import (
	"context"
	"sync"

	"github.com/alwitt/rentalhub/broadcast"
	"github.com/alwitt/rentalhub/common"
	"github.com/alwitt/rentalhub/transport"
	"github.com/apex/log"
	"github.com/gorilla/mux"
)

// Params bootstrap parameters
type Params struct {
	// Instance names the hub in logs
	Instance string
	// Path is the HTTP path the websocket channel is served on
	Path string
	// TaskBuffer hub event loop task buffer depth
	TaskBuffer int
	// Websocket are the websocket server parameters
	Websocket transport.WebsocketParams
}

// ParamsFromConfig convert the real-time config section into bootstrap parameters
func ParamsFromConfig(instance string, config common.RealtimeConfig) Params {
	return Params{
		Instance:   instance,
		Path:       config.Path,
		TaskBuffer: config.TaskBuffer,
		Websocket: transport.WebsocketParams{
			AllowedOrigin: config.AllowedOrigin,
			ReadLimit:     config.ReadLimit,
			SendBuffer:    config.SendBuffer,
			PingInterval:  config.PingIntervalDuration(),
			PongTimeout:   config.PingTimeoutDuration(),
			WriteTimeout:  config.WriteTimeoutDuration(),
		},
	}
}

var (
	lock    sync.Mutex
	current *broadcast.Hub
)

var logTags = log.Fields{"module": "realtime", "component": "bootstrap"}

// Initialize build the process wide hub, start it, and mount its websocket channel on
// the router. While that hub runs, later calls return it and have no other effect.
func Initialize(
	ctxt context.Context, wg *sync.WaitGroup, router *mux.Router, params Params,
) (*broadcast.Hub, error) {
	lock.Lock()
	defer lock.Unlock()
	if current != nil {
		log.WithFields(logTags).Warn("Real-time hub already initialized")
		return current, nil
	}

	hub, err := broadcast.GetHub(ctxt, broadcast.HubParams{
		Instance: params.Instance, TaskBuffer: params.TaskBuffer,
	})
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define hub")
		return nil, err
	}
	server, err := transport.GetWebsocketServer(ctxt, hub, params.Websocket)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define websocket server")
		hub.Stop()
		return nil, err
	}
	if err := hub.Start(wg); err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to start hub")
		hub.Stop()
		return nil, err
	}
	router.Handle(params.Path, server)

	current = hub
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-hub.Done()
		lock.Lock()
		defer lock.Unlock()
		if current == hub {
			current = nil
			log.WithFields(logTags).Info("Real-time hub stopped")
		}
	}()
	log.WithFields(logTags).Infof("Real-time channel served on %s", params.Path)
	return current, nil
}

// Current the process wide hub. nil until Initialize succeeds, and again once that
// hub stops.
func Current() *broadcast.Hub {
	lock.Lock()
	defer lock.Unlock()
	return current
}

// reset forget the process wide hub
func reset() {
	lock.Lock()
	defer lock.Unlock()
	if current != nil {
		current.Stop()
	}
	current = nil
}
