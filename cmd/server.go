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

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/alwitt/rentalhub/apis"
	"github.com/alwitt/rentalhub/common"
	"github.com/alwitt/rentalhub/core"
	"github.com/alwitt/rentalhub/ingress"
	"github.com/alwitt/rentalhub/realtime"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/nats-io/nats.go"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"
)

// RunServer run the real-time broadcast server until the runtime context ends
func RunServer(
	runtimeContext context.Context, config *common.SystemConfig, instance string,
) error {
	logTags := log.Fields{
		"module":    "cmd",
		"component": "server",
		"instance":  instance,
	}

	if err := validator.New().Struct(config); err != nil {
		log.WithError(err).WithFields(logTags).Error("Invalid config")
		return err
	}

	wg := sync.WaitGroup{}
	defer wg.Wait()
	group, groupCtxt := errgroup.WithContext(runtimeContext)

	router := mux.NewRouter()
	mainRouter := apis.RegisterPathPrefix(router, config.Endpoints.PathPrefix, nil)

	// Real-time hub and its websocket channel
	hub, err := realtime.Initialize(
		groupCtxt, &wg, mainRouter, realtime.ParamsFromConfig(instance, config.Realtime),
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to start real-time hub")
		return err
	}
	defer hub.Stop()

	dispatcher, err := ingress.GetDispatcher(instance, hub)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define event dispatcher")
		return err
	}

	// -------------------------------------------------------------------
	// REST API

	httpHandler, err := apis.GetAPIRestRealtimeHandler(hub, dispatcher, &config.HTTPSetting)
	if err != nil {
		log.WithError(err).WithFields(logTags).Errorf("Unable to define HTTP handler")
		return err
	}
	restRouter := apis.RegisterRealtimeRoutes(mainRouter, httpHandler)

	// Add logging. The websocket route is left out as its request never completes.
	restRouter.Use(func(next http.Handler) http.Handler {
		return handlers.CombinedLoggingHandler(httpHandler, next)
	})

	corsOptions := []handlers.CORSOption{
		handlers.AllowedOrigins([]string{config.Realtime.AllowedOrigin}),
		handlers.AllowedHeaders(config.Realtime.AllowedHeaders),
		handlers.AllowedMethods(config.Realtime.AllowedMethods),
	}
	if config.Realtime.AllowCredentials {
		corsOptions = append(corsOptions, handlers.AllowCredentials())
	}
	cors := handlers.CORS(corsOptions...)

	// -------------------------------------------------------------------
	// NATS ingress

	if config.Ingress.NATS.Enabled {
		natsClient, err := prepareNATSClient(config.Ingress.NATS.NATS, logTags)
		if err != nil {
			log.WithError(err).WithFields(logTags).Errorf(
				"Failed to define NATS client with %s", config.Ingress.NATS.NATS.ServerURI,
			)
			return err
		}
		defer func() {
			ctxt, cancel := context.WithTimeout(context.Background(), time.Second*5)
			defer cancel()
			natsClient.Close(ctxt)
		}()
		natsIngress, err := ingress.GetNATSIngress(natsClient, dispatcher, ingress.NATSIngressParams{
			SubjectPrefix:   config.Ingress.NATS.SubjectPrefix,
			QueueGroup:      config.Ingress.NATS.QueueGroup,
			RequestIDHeader: config.HTTPSetting.Logging.RequestIDHeader,
		})
		if err != nil {
			log.WithError(err).WithFields(logTags).Error("Unable to define NATS ingress")
			return err
		}
		group.Go(func() error {
			return natsIngress.Run(groupCtxt)
		})
	}

	// -------------------------------------------------------------------
	// Start the HTTP server

	serverCfg := config.HTTPSetting.Server
	serverListen := fmt.Sprintf("%s:%d", serverCfg.ListenOn, serverCfg.Port)
	httpSrv := &http.Server{
		Addr:         serverListen,
		WriteTimeout: time.Second * time.Duration(serverCfg.WriteTimeout),
		ReadTimeout:  time.Second * time.Duration(serverCfg.ReadTimeout),
		IdleTimeout:  time.Second * time.Duration(serverCfg.IdleTimeout),
		Handler:      cors(h2c.NewHandler(router, &http2.Server{})),
	}

	group.Go(func() error {
		log.WithFields(logTags).Infof("Started HTTP server on http://%s", serverListen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).WithFields(logTags).Error("HTTP Server Failure")
			return err
		}
		return nil
	})

	// Stop the HTTP server
	group.Go(func() error {
		<-groupCtxt.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			log.WithError(err).WithFields(logTags).Error("Failure during HTTP shutdown")
		}
		return nil
	})

	return group.Wait()
}

// prepareNATSClient define the NATS client
func prepareNATSClient(config common.NATSConfig, logTags log.Fields) (*core.NatsClient, error) {
	natsParam := core.ParamsFromConfig(config)
	natsParam.OnDisconnectCallback = func(_ *nats.Conn, e error) {
		log.WithError(e).WithFields(logTags).Errorf(
			"NATS client disconnected from server %s", config.ServerURI,
		)
	}
	natsParam.OnReconnectCallback = func(_ *nats.Conn) {
		log.WithFields(logTags).Warnf(
			"NATS client reconnected with server %s", config.ServerURI,
		)
	}
	natsParam.OnCloseCallback = func(_ *nats.Conn) {
		log.WithFields(logTags).Info("NATS client closed connection")
	}
	return core.GetNATSClient(natsParam)
}
