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

package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alwitt/rentalhub/broadcast"
	"github.com/alwitt/rentalhub/common"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// SessionHandler receives the lifecycle of every websocket session
type SessionHandler interface {
	// Connect a new channel was accepted
	Connect(channel broadcast.Channel)
	// HandleInbound a frame arrived on a session
	HandleInbound(sessionID string, frame []byte)
	// Disconnect a session's channel closed
	Disconnect(sessionID string)
}

// WebsocketParams websocket server parameters
type WebsocketParams struct {
	// AllowedOrigin browser origin allowed to open a channel. "*" allows any origin.
	AllowedOrigin string `validate:"required"`
	// ReadLimit max size of one inbound frame
	ReadLimit int64 `validate:"gte=128"`
	// SendBuffer per-connection outbound frame buffer depth
	SendBuffer int `validate:"gte=1"`
	// PingInterval interval between heartbeat pings
	PingInterval time.Duration `validate:"gt=0"`
	// PongTimeout how long a silent connection is kept
	PongTimeout time.Duration `validate:"gtfield=PingInterval"`
	// WriteTimeout deadline for a single write
	WriteTimeout time.Duration `validate:"gt=0"`
}

// WebsocketServer upgrades HTTP requests into websocket channels and feeds their
// traffic into a SessionHandler
type WebsocketServer struct {
	common.Component
	hub      SessionHandler
	params   WebsocketParams
	upgrader websocket.Upgrader
	ctxt     context.Context
}

// GetWebsocketServer define a new websocket server
func GetWebsocketServer(
	ctxt context.Context, hub SessionHandler, params WebsocketParams,
) (*WebsocketServer, error) {
	if err := validator.New().Struct(&params); err != nil {
		return nil, err
	}
	logTags := log.Fields{
		"module": "transport", "component": "websocket", "instance": params.AllowedOrigin,
	}
	instance := &WebsocketServer{
		Component: common.Component{LogTags: logTags},
		hub:       hub,
		params:    params,
		ctxt:      ctxt,
	}
	instance.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     instance.checkOrigin,
	}
	return instance, nil
}

// checkOrigin accept non-browser clients, and browsers on the allowed origin
func (s *WebsocketServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.params.AllowedOrigin == "*" {
		return true
	}
	allowed := strings.EqualFold(
		strings.TrimSuffix(origin, "/"), strings.TrimSuffix(s.params.AllowedOrigin, "/"),
	)
	if !allowed {
		log.WithFields(s.LogTags).Warnf("Rejected channel from origin %s", origin)
	}
	return allowed
}

// ServeHTTP upgrade the request and serve the channel. Blocks until the channel closes.
func (s *WebsocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response
		log.WithError(err).WithFields(s.LogTags).Debug("Websocket upgrade failed")
		return
	}

	sessionID := uuid.New().String()
	channel := &wsChannel{
		Component: common.Component{LogTags: log.Fields{
			"module": "transport", "component": "websocket-channel", "instance": sessionID,
		}},
		id:           sessionID,
		conn:         conn,
		send:         make(chan []byte, s.params.SendBuffer),
		done:         make(chan struct{}),
		writeTimeout: s.params.WriteTimeout,
	}
	log.WithFields(channel.LogTags).Debugf("Accepted channel from %s", r.RemoteAddr)

	heartbeatWG := sync.WaitGroup{}
	heartbeat, err := common.GetIntervalTimerInstance(
		fmt.Sprintf("%s.heartbeat", sessionID), s.ctxt, &heartbeatWG,
	)
	if err != nil {
		log.WithError(err).WithFields(channel.LogTags).Error("Unable to define heartbeat timer")
		channel.Close()
		return
	}

	s.hub.Connect(channel)
	go channel.writeLoop()
	if err := heartbeat.Start(s.params.PingInterval, channel.ping, false); err != nil {
		log.WithError(err).WithFields(channel.LogTags).Error("Unable to start heartbeat")
	}

	channel.readLoop(s.hub, s.params.ReadLimit, s.params.PongTimeout)

	_ = heartbeat.Stop()
	heartbeatWG.Wait()
	channel.Close()
	s.hub.Disconnect(sessionID)
	log.WithFields(channel.LogTags).Debug("Channel closed")
}

// ========================================================================================

// wsChannel one websocket connection, implements broadcast.Channel
type wsChannel struct {
	common.Component
	id           string
	conn         *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
}

// ID implements broadcast.Channel
func (c *wsChannel) ID() string {
	return c.id
}

// Send implements broadcast.Channel. A full buffer drops the frame.
func (c *wsChannel) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close implements broadcast.Channel
func (c *wsChannel) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.writeTimeout),
		)
		_ = c.conn.Close()
	})
}

// ping heartbeat handler. WriteControl is safe alongside the write loop.
func (c *wsChannel) ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// writeLoop forward queued frames to the connection
func (c *wsChannel) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.WithError(err).WithFields(c.LogTags).Debug("Write failed")
				c.Close()
				return
			}
		}
	}
}

// readLoop hand inbound frames to the session handler until the connection fails
func (c *wsChannel) readLoop(hub SessionHandler, readLimit int64, pongTimeout time.Duration) {
	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				log.WithError(err).WithFields(c.LogTags).Info("Channel closed unexpectedly")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		hub.HandleInbound(c.id, msg)
	}
}
