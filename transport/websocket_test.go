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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alwitt/rentalhub/broadcast"
	"github.com/apex/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

func testParams() WebsocketParams {
	return WebsocketParams{
		AllowedOrigin: "http://localhost:3000",
		ReadLimit:     4096,
		SendBuffer:    16,
		PingInterval:  time.Second * 25,
		PongTimeout:   time.Second * 60,
		WriteTimeout:  time.Second * 5,
	}
}

// startTestServer run a hub behind a websocket server
func startTestServer(
	t *testing.T, params WebsocketParams,
) (string, *broadcast.Hub, context.CancelFunc) {
	t.Helper()
	wg := sync.WaitGroup{}
	ctxt, cancel := context.WithCancel(context.Background())

	hub, err := broadcast.GetHub(ctxt, broadcast.HubParams{Instance: "unit-test", TaskBuffer: 16})
	assert.Nil(t, err)
	assert.Nil(t, hub.Start(&wg))

	uut, err := GetWebsocketServer(ctxt, hub, params)
	assert.Nil(t, err)

	srv := httptest.NewServer(uut)
	t.Cleanup(func() {
		cancel()
		srv.Close()
		wg.Wait()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub, cancel
}

func dial(t *testing.T, wsURL string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	assert.Nil(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) broadcast.Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(time.Second * 2))
	_, msg, err := conn.ReadMessage()
	assert.Nil(t, err)
	var frame broadcast.Frame
	assert.Nil(t, json.Unmarshal(msg, &frame))
	return frame
}

func TestWebsocketOriginCheck(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	wsURL, hub, _ := startTestServer(t, testParams())

	// Case 0: no origin header
	dial(t, wsURL, nil)

	// Case 1: allowed origin
	dial(t, wsURL, http.Header{"Origin": []string{"http://localhost:3000"}})

	// Case 2: foreign origin
	{
		_, resp, err := websocket.DefaultDialer.Dial(
			wsURL, http.Header{"Origin": []string{"http://evil.example.com"}},
		)
		assert.NotNil(err)
		assert.NotNil(resp)
		assert.Equal(http.StatusForbidden, resp.StatusCode)
	}

	assert.Eventually(func() bool { return hub.ConnectionCount() == 2 }, time.Second, time.Millisecond*5)
}

func TestWebsocketAnyOrigin(t *testing.T) {
	assert := assert.New(t)

	params := testParams()
	params.AllowedOrigin = "*"
	wsURL, hub, _ := startTestServer(t, params)

	dial(t, wsURL, http.Header{"Origin": []string{"http://evil.example.com"}})
	assert.Eventually(func() bool { return hub.ConnectionCount() == 1 }, time.Second, time.Millisecond*5)
}

func TestWebsocketRegisterAndDisconnect(t *testing.T) {
	assert := assert.New(t)

	wsURL, hub, _ := startTestServer(t, testParams())

	alice := dial(t, wsURL, nil)
	observer := dial(t, wsURL, nil)
	assert.Eventually(func() bool { return hub.ConnectionCount() == 2 }, time.Second, time.Millisecond*5)

	assert.Nil(alice.WriteMessage(
		websocket.TextMessage, []byte(`{"event":"register","data":{"userId":"u1","userName":"Alice"}}`),
	))
	for _, conn := range []*websocket.Conn{alice, observer} {
		frame := readFrame(t, conn)
		assert.Equal(broadcast.EventConnectedUsers, frame.Event)
		var snapshot broadcast.ConnectedUsers
		assert.Nil(json.Unmarshal(frame.Data, &snapshot))
		assert.Equal(2, snapshot.Count)
		assert.Len(snapshot.Users, 1)
		assert.Equal("Alice", snapshot.Users[0].UserName)
	}
	aliceID := hub.PresenceSnapshot().Users[0].SocketID

	// Client side close removes the session and updates the others
	assert.Nil(alice.Close())
	frame := readFrame(t, observer)
	assert.Equal(broadcast.EventConnectedUsers, frame.Event)
	var snapshot broadcast.ConnectedUsers
	assert.Nil(json.Unmarshal(frame.Data, &snapshot))
	assert.Equal(1, snapshot.Count)
	assert.Empty(snapshot.Users)
	for _, session := range hub.Sessions() {
		assert.NotEqual(aliceID, session.SessionID)
	}
}

func TestWebsocketPingPong(t *testing.T) {
	assert := assert.New(t)

	wsURL, _, _ := startTestServer(t, testParams())

	conn := dial(t, wsURL, nil)
	assert.Nil(conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"ping"}`)))
	frame := readFrame(t, conn)
	assert.Equal(broadcast.EventPong, frame.Event)
	var pong broadcast.Pong
	assert.Nil(json.Unmarshal(frame.Data, &pong))
	assert.InDelta(time.Now().UnixMilli(), pong.Timestamp, 5000)
}

func TestWebsocketHeartbeat(t *testing.T) {
	assert := assert.New(t)

	params := testParams()
	params.PingInterval = time.Millisecond * 20
	params.PongTimeout = time.Second
	wsURL, hub, _ := startTestServer(t, params)

	conn := dial(t, wsURL, nil)
	var pings int32
	conn.SetPingHandler(func(data string) error {
		atomic.AddInt32(&pings, 1)
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	// Control frames are only processed while reading
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	assert.Eventually(
		func() bool { return atomic.LoadInt32(&pings) >= 3 }, time.Second*2, time.Millisecond*10,
	)
	// Answered pings keep the channel alive past several intervals
	assert.Equal(1, hub.ConnectionCount())
}

func TestWebsocketShutdownClosesClients(t *testing.T) {
	assert := assert.New(t)

	wsURL, hub, cancel := startTestServer(t, testParams())

	conn := dial(t, wsURL, nil)
	assert.Eventually(func() bool { return hub.ConnectionCount() == 1 }, time.Second, time.Millisecond*5)

	cancel()
	_ = conn.SetReadDeadline(time.Now().Add(time.Second * 2))
	_, _, err := conn.ReadMessage()
	assert.NotNil(err)
	assert.True(websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestGetWebsocketServerInvalidParams(t *testing.T) {
	assert := assert.New(t)

	params := testParams()
	params.PongTimeout = params.PingInterval
	_, err := GetWebsocketServer(context.Background(), nil, params)
	assert.NotNil(err)

	params = testParams()
	params.SendBuffer = 0
	_, err = GetWebsocketServer(context.Background(), nil, params)
	assert.NotNil(err)
}
