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

package apis

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/alwitt/rentalhub/broadcast"
	"github.com/alwitt/rentalhub/common"
	"github.com/alwitt/rentalhub/ingress"
	"github.com/apex/log"
	"github.com/gorilla/mux"
)

// maxEventBodySize cap on a publish request body
const maxEventBodySize = 1 << 20

// APIRestRealtimeHandler REST handler for the real-time hub
type APIRestRealtimeHandler struct {
	APIRestHandler
	hub        broadcast.Publisher
	dispatcher *ingress.Dispatcher
}

// GetAPIRestRealtimeHandler define APIRestRealtimeHandler
func GetAPIRestRealtimeHandler(
	hub broadcast.Publisher, dispatcher *ingress.Dispatcher, httpConfig *common.HTTPConfig,
) (APIRestRealtimeHandler, error) {
	if hub == nil || dispatcher == nil {
		return APIRestRealtimeHandler{}, fmt.Errorf("real-time REST handler requires a hub and dispatcher")
	}
	logTags := log.Fields{
		"module":    "apis",
		"component": "realtime",
	}
	return APIRestRealtimeHandler{
		APIRestHandler: getAPIRestHandler(logTags, httpConfig),
		hub:            hub,
		dispatcher:     dispatcher,
	}, nil
}

// RegisterRealtimeRoutes mount the real-time REST API on a router
func RegisterRealtimeRoutes(router *mux.Router, handler APIRestRealtimeHandler) *mux.Router {
	mainRouter := RegisterPathPrefix(router, "/v1/realtime", nil)
	mainRouter.Use(handler.AttachRequestID)

	_ = RegisterPathPrefix(mainRouter, "/alive", MethodHandlers{
		"get": handler.AliveHandler(),
	})
	_ = RegisterPathPrefix(mainRouter, "/ready", MethodHandlers{
		"get": handler.ReadyHandler(),
	})
	presenceRouter := RegisterPathPrefix(mainRouter, "/presence", MethodHandlers{
		"get": handler.ListSessionsHandler(),
	})
	_ = RegisterPathPrefix(presenceRouter, "/snapshot", MethodHandlers{
		"get": handler.PresenceSnapshotHandler(),
	})
	_ = RegisterPathPrefix(mainRouter, "/event/{eventKind}", MethodHandlers{
		"post": handler.PublishEventHandler(),
	})
	return mainRouter
}

// =======================================================================
// Health

// Alive godoc
// @Summary For real-time REST API liveness check
// @Description Will return success to indicate real-time REST API module is live
// @tags Realtime
// @Produce json
// @Success 200 {object} RestAPIBaseResponse "success"
// @Router /v1/realtime/alive [get]
func (h APIRestRealtimeHandler) Alive(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	if err := h.WriteRESTResponse(
		w, http.StatusOK, h.GetStdRESTSuccessMsg(r.Context()), nil,
	); err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
	}
}

// AliveHandler Wrapper around Alive
func (h APIRestRealtimeHandler) AliveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Alive(w, r)
	}
}

// -----------------------------------------------------------------------

// Ready godoc
// @Summary For real-time REST API readiness check
// @Description Will return success if the hub is accepting events
// @tags Realtime
// @Produce json
// @Success 200 {object} RestAPIBaseResponse "success"
// @Failure 500 {object} RestAPIBaseResponse "error"
// @Router /v1/realtime/ready [get]
func (h APIRestRealtimeHandler) Ready(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	if err := r.Context().Err(); err != nil {
		msg := "not ready"
		respCode = http.StatusInternalServerError
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusInternalServerError, msg, err.Error())
		return
	}
	respCode = http.StatusOK
	respBody = h.GetStdRESTSuccessMsg(r.Context())
}

// ReadyHandler Wrapper around Ready
func (h APIRestRealtimeHandler) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Ready(w, r)
	}
}

// =======================================================================
// Presence

// APIRestRespSessions response for listing connected sessions
type APIRestRespSessions struct {
	RestAPIBaseResponse
	// Count number of connected sessions
	Count int `json:"count"`
	// Sessions every connected session, registered or not
	Sessions []broadcast.Session `json:"sessions"`
}

// ListSessions godoc
// @Summary List connected sessions
// @Description List every connected session, including those which have not registered
// @tags Realtime
// @Produce json
// @Param Rentalhub-Request-ID header string false "User provided request ID to match against logs"
// @Success 200 {object} APIRestRespSessions "success"
// @Header 200 {string} Rentalhub-Request-ID "Request ID to match against logs"
// @Router /v1/realtime/presence [get]
func (h APIRestRealtimeHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	sessions := h.hub.Sessions()
	resp := APIRestRespSessions{
		RestAPIBaseResponse: h.GetStdRESTSuccessMsg(r.Context()),
		Count:               len(sessions),
		Sessions:            sessions,
	}
	if err := h.WriteRESTResponse(w, http.StatusOK, resp, nil); err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
	}
}

// ListSessionsHandler Wrapper around ListSessions
func (h APIRestRealtimeHandler) ListSessionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.ListSessions(w, r)
	}
}

// -----------------------------------------------------------------------

// APIRestRespPresence response for the presence snapshot
type APIRestRespPresence struct {
	RestAPIBaseResponse
	broadcast.ConnectedUsers
}

// PresenceSnapshot godoc
// @Summary Presence snapshot
// @Description The presence snapshot as broadcast to clients: connection count plus named users
// @tags Realtime
// @Produce json
// @Param Rentalhub-Request-ID header string false "User provided request ID to match against logs"
// @Success 200 {object} APIRestRespPresence "success"
// @Header 200 {string} Rentalhub-Request-ID "Request ID to match against logs"
// @Router /v1/realtime/presence/snapshot [get]
func (h APIRestRealtimeHandler) PresenceSnapshot(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	resp := APIRestRespPresence{
		RestAPIBaseResponse: h.GetStdRESTSuccessMsg(r.Context()),
		ConnectedUsers:      h.hub.PresenceSnapshot(),
	}
	if err := h.WriteRESTResponse(w, http.StatusOK, resp, nil); err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
	}
}

// PresenceSnapshotHandler Wrapper around PresenceSnapshot
func (h APIRestRealtimeHandler) PresenceSnapshotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.PresenceSnapshot(w, r)
	}
}

// =======================================================================
// Publish

// PublishEvent godoc
// @Summary Publish an event
// @Description Broadcast a domain event to every connected session
// @tags Realtime
// @Accept json
// @Produce json
// @Param Rentalhub-Request-ID header string false "User provided request ID to match against logs"
// @Param eventKind path string true "Event kind, e.g. rental-created"
// @Param request body string true "Event request matching the event kind"
// @Success 200 {object} RestAPIBaseResponse "success"
// @Failure 400 {object} RestAPIBaseResponse "error"
// @Failure 404 {string} string "error"
// @Header 200,400 {string} Rentalhub-Request-ID "Request ID to match against logs"
// @Router /v1/realtime/event/{eventKind} [post]
func (h APIRestRealtimeHandler) PublishEvent(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	eventKind, ok := mux.Vars(r)["eventKind"]
	if !ok {
		msg := "No event kind provided"
		log.WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, msg)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBodySize))
	if err != nil {
		msg := "Unable to read request body"
		log.WithError(err).WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), eventKind, body); err != nil {
		msg := fmt.Sprintf("Unable to publish %s", eventKind)
		if errors.Is(err, ingress.ErrUnknownEventKind) {
			msg = fmt.Sprintf("Unknown event kind %s", eventKind)
		}
		log.WithError(err).WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}

	respCode = http.StatusOK
	respBody = h.GetStdRESTSuccessMsg(r.Context())
}

// PublishEventHandler Wrapper around PublishEvent
func (h APIRestRealtimeHandler) PublishEventHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.PublishEvent(w, r)
	}
}
