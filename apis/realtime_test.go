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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alwitt/rentalhub/broadcast"
	"github.com/alwitt/rentalhub/common"
	"github.com/alwitt/rentalhub/ingress"
	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

// testChannel in-memory broadcast.Channel
type testChannel struct {
	id     string
	frames chan []byte
}

func (c *testChannel) ID() string { return c.id }

func (c *testChannel) Send(frame []byte) bool {
	select {
	case c.frames <- frame:
		return true
	default:
		return false
	}
}

func (c *testChannel) Close() {}

func TestRealtimeAPIs(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	wg := sync.WaitGroup{}
	defer wg.Wait()
	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()

	hub, err := broadcast.GetHub(utCtxt, broadcast.HubParams{Instance: "ut-apis", TaskBuffer: 16})
	assert.Nil(err)
	assert.Nil(hub.Start(&wg))

	dispatcher, err := ingress.GetDispatcher("ut-apis", hub)
	assert.Nil(err)

	uut, err := GetAPIRestRealtimeHandler(hub, dispatcher, &common.HTTPConfig{
		Logging: common.HTTPRequestLogging{
			RequestIDHeader: "Rentalhub-Request-ID",
			DoNotLogHeaders: []string{"Authorization"},
		},
	})
	assert.Nil(err)

	router := mux.NewRouter()
	RegisterRealtimeRoutes(router, uut)

	call := func(method, path, body, reqID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if reqID != "" {
			req.Header.Set("Rentalhub-Request-ID", reqID)
		}
		respRecorder := httptest.NewRecorder()
		router.ServeHTTP(respRecorder, req)
		return respRecorder
	}

	checkHeader := func(w http.ResponseWriter, reqID string) {
		assert.Equal(reqID, w.Header().Get("Rentalhub-Request-ID"))
		assert.Equal("application/json", w.Header().Get("content-type"))
	}

	// Case 0: liveness and readiness
	for _, path := range []string{"/v1/realtime/alive", "/v1/realtime/ready"} {
		testReqID := uuid.NewString()
		resp := call("GET", path, "", testReqID)
		assert.Equal(http.StatusOK, resp.Code)
		checkHeader(resp, testReqID)
		var msg RestAPIBaseResponse
		assert.Nil(json.Unmarshal(resp.Body.Bytes(), &msg))
		assert.True(msg.Success)
		assert.Equal(testReqID, msg.RequestID)
	}

	// Case 1: generated request ID
	{
		resp := call("GET", "/v1/realtime/alive", "", "")
		assert.Equal(http.StatusOK, resp.Code)
		var msg RestAPIBaseResponse
		assert.Nil(json.Unmarshal(resp.Body.Bytes(), &msg))
		assert.NotEmpty(msg.RequestID)
		assert.Equal(msg.RequestID, resp.Header().Get("Rentalhub-Request-ID"))
	}

	// Connect two sessions; only the first registers
	named := &testChannel{id: uuid.NewString(), frames: make(chan []byte, 16)}
	anonymous := &testChannel{id: uuid.NewString(), frames: make(chan []byte, 16)}
	hub.Connect(named)
	hub.Connect(anonymous)
	hub.HandleInbound(named.ID(), []byte(`{"event":"register","data":{"userId":"u1","userName":"Alice"}}`))
	for _, session := range []*testChannel{named, anonymous} {
		select {
		case <-session.frames:
		case <-time.After(time.Second):
			assert.Fail("presence broadcast not received")
		}
	}

	// Case 2: unfiltered session list
	{
		testReqID := uuid.NewString()
		resp := call("GET", "/v1/realtime/presence", "", testReqID)
		assert.Equal(http.StatusOK, resp.Code)
		checkHeader(resp, testReqID)
		var msg APIRestRespSessions
		assert.Nil(json.Unmarshal(resp.Body.Bytes(), &msg))
		assert.Equal(2, msg.Count)
		assert.Len(msg.Sessions, 2)
		assert.Equal(named.ID(), msg.Sessions[0].SessionID)
		assert.Equal("Alice", msg.Sessions[0].UserName)
		assert.Equal(anonymous.ID(), msg.Sessions[1].SessionID)
		assert.False(msg.Sessions[1].Registered)
	}

	// Case 3: filtered presence snapshot
	{
		testReqID := uuid.NewString()
		resp := call("GET", "/v1/realtime/presence/snapshot", "", testReqID)
		assert.Equal(http.StatusOK, resp.Code)
		checkHeader(resp, testReqID)
		var msg APIRestRespPresence
		assert.Nil(json.Unmarshal(resp.Body.Bytes(), &msg))
		assert.True(msg.Success)
		assert.Equal(2, msg.Count)
		assert.Equal(
			[]broadcast.PresenceUser{{UserName: "Alice", SocketID: named.ID()}}, msg.Users,
		)
	}

	// Case 4: publish an event
	{
		testReqID := uuid.NewString()
		resp := call(
			"POST",
			"/v1/realtime/event/rental-created",
			`{"rental":{"id":"r-1","customerName":"Ján Novák"},"createdBy":"admin"}`,
			testReqID,
		)
		assert.Equal(http.StatusOK, resp.Code)
		checkHeader(resp, testReqID)
		for _, session := range []*testChannel{named, anonymous} {
			select {
			case raw := <-session.frames:
				var frame broadcast.Frame
				assert.Nil(json.Unmarshal(raw, &frame))
				assert.Equal(broadcast.EventRentalCreated, frame.Event)
				var event broadcast.RentalCreated
				assert.Nil(json.Unmarshal(frame.Data, &event))
				assert.Equal("admin vytvoril nový prenájom pre Ján Novák", event.Message)
			case <-time.After(time.Second):
				assert.Fail("event not received")
			}
		}
	}

	// Case 5: unknown event kind
	{
		testReqID := uuid.NewString()
		resp := call("POST", "/v1/realtime/event/rental-archived", `{}`, testReqID)
		assert.Equal(http.StatusBadRequest, resp.Code)
		checkHeader(resp, testReqID)
		var msg RestAPIBaseResponse
		assert.Nil(json.Unmarshal(resp.Body.Bytes(), &msg))
		assert.False(msg.Success)
		assert.NotNil(msg.Error)
		assert.Equal(http.StatusBadRequest, msg.Error.Code)
	}

	// Case 6: invalid request body
	{
		testReqID := uuid.NewString()
		resp := call("POST", "/v1/realtime/event/rental-created", `{"createdBy":"admin"}`, testReqID)
		assert.Equal(http.StatusBadRequest, resp.Code)
		checkHeader(resp, testReqID)
	}

	// Case 7: wrong method
	{
		resp := call("GET", "/v1/realtime/event/rental-created", "", "")
		assert.Equal(http.StatusMethodNotAllowed, resp.Code)
	}
}

func TestGetAPIRestRealtimeHandlerRequiresHub(t *testing.T) {
	assert := assert.New(t)
	_, err := GetAPIRestRealtimeHandler(nil, nil, &common.HTTPConfig{})
	assert.NotNil(err)
}
