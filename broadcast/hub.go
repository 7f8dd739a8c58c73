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

package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/alwitt/rentalhub/common"
	"github.com/alwitt/rentalhub/models"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
)

// Channel is one live bidirectional connection to a client, as seen by the hub
type Channel interface {
	// ID the transport assigned session ID
	ID() string
	// Send queue a frame for delivery. Never blocks; returns false if the frame was dropped.
	Send(frame []byte) bool
	// Close terminate the connection. May be called more than once.
	Close()
}

// Session is one entry of the connection registry
type Session struct {
	// SessionID is the transport assigned session ID
	SessionID string `json:"socketId"`
	// UserID is the registered user's ID
	UserID string `json:"userId,omitempty"`
	// UserName is the registered user's name
	UserName string `json:"userName,omitempty"`
	// Registered whether the client has sent "register"
	Registered bool `json:"registered"`
	// ConnectedAt when the connection was accepted
	ConnectedAt time.Time `json:"connectedAt"`
}

// sessionEntry registry entry
type sessionEntry struct {
	Session
	seq     uint64
	channel Channel
}

// registerPayload data of the inbound "register" message
type registerPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// Publisher is the hub's interface toward the rest of the application
type Publisher interface {
	// BroadcastRentalCreated announce a new rental
	BroadcastRentalCreated(rental models.Rental, createdBy string)
	// BroadcastRentalUpdated announce a rental update
	BroadcastRentalUpdated(rental models.Rental, updatedBy string, changes []string)
	// BroadcastRentalDeleted announce a rental deletion
	BroadcastRentalDeleted(rentalID, customerName, deletedBy string)
	// BroadcastVehicleUpdated announce a vehicle update
	BroadcastVehicleUpdated(vehicle models.Vehicle, updatedBy string, changes []string)
	// BroadcastCustomerCreated announce a new customer
	BroadcastCustomerCreated(customer models.Customer, createdBy string)
	// BroadcastProtocolCreated announce a new handover / return protocol
	BroadcastProtocolCreated(
		rentalID string, kind models.ProtocolKind, protocolID, createdBy string,
	)
	// BroadcastProtocolUpdated announce a handover / return protocol update
	BroadcastProtocolUpdated(
		rentalID string, kind models.ProtocolKind, protocolID, updatedBy string, changes []string,
	)
	// BroadcastSystemNotification send a system notice
	BroadcastSystemNotification(
		notificationType, message string, details map[string]interface{},
	)
	// BroadcastMigrationCompleted announce the result of a data migration
	BroadcastMigrationCompleted(migrationName string, success bool, details map[string]interface{})
	// BroadcastTest send a diagnostic broadcast
	BroadcastTest(message string)
	// BroadcastConnectedUsers re-send the presence snapshot
	BroadcastConnectedUsers()
	// ConnectionCount number of connected sessions
	ConnectionCount() int
	// Sessions all connected sessions, registered or not
	Sessions() []Session
	// PresenceSnapshot the presence snapshot, listing only named users
	PresenceSnapshot() ConnectedUsers
}

// HubParams hub parameters
type HubParams struct {
	// Instance names this hub in logs
	Instance string `validate:"required"`
	// TaskBuffer event loop task buffer depth
	TaskBuffer int `validate:"gte=1"`
	// Clock overrides time.Now
	Clock func() time.Time `validate:"-"`
}

// Hub fans out domain events to every connected session and tracks presence.
//
// Registry mutations and publishes are all executed by one event loop goroutine, so
// the snapshot-then-broadcast sequence of register / disconnect can not interleave.
// Registry reads from other goroutines go through the RWMutex.
type Hub struct {
	common.Component
	tp       common.TaskProcessor
	ctxt     context.Context
	cancel   context.CancelFunc
	lock     sync.RWMutex
	sessions map[string]*sessionEntry
	pending  map[string]Channel
	nextSeq  uint64
	now      func() time.Time
}

// Event loop task params
type connectTask struct{ channel Channel }

type inboundTask struct {
	sessionID string
	frame     []byte
}

type disconnectTask struct{ sessionID string }

type publishTask struct {
	event string
	frame []byte
}

type diagnosticTask struct {
	message   string
	timestamp string
}

type presenceTask struct{}

// GetHub define a new hub. The hub processes nothing until Start is called.
func GetHub(ctxt context.Context, params HubParams) (*Hub, error) {
	if err := validator.New().Struct(&params); err != nil {
		return nil, err
	}
	logTags := log.Fields{
		"module": "broadcast", "component": "hub", "instance": params.Instance,
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	hubCtxt, cancel := context.WithCancel(ctxt)
	tp, err := common.GetNewTaskProcessorInstance(
		fmt.Sprintf("%s.hub", params.Instance), params.TaskBuffer, hubCtxt,
	)
	if err != nil {
		cancel()
		log.WithError(err).WithFields(logTags).Error("Unable to define task processor")
		return nil, err
	}
	instance := &Hub{
		Component: common.Component{LogTags: logTags},
		tp:        tp,
		ctxt:      hubCtxt,
		cancel:    cancel,
		sessions:  make(map[string]*sessionEntry),
		pending:   make(map[string]Channel),
		now:       clock,
	}
	if err := tp.SetTaskExecutionMap(map[reflect.Type]common.TaskHandler{
		reflect.TypeOf(connectTask{}):    instance.processConnect,
		reflect.TypeOf(inboundTask{}):    instance.processInbound,
		reflect.TypeOf(disconnectTask{}): instance.processDisconnect,
		reflect.TypeOf(publishTask{}):    instance.processPublish,
		reflect.TypeOf(diagnosticTask{}): instance.processDiagnostic,
		reflect.TypeOf(presenceTask{}):   instance.processPresence,
	}); err != nil {
		cancel()
		return nil, err
	}
	return instance, nil
}

// Start start the hub event loop. All channels are closed when the hub's context ends.
func (h *Hub) Start(wg *sync.WaitGroup) error {
	if err := h.tp.StartEventLoop(wg); err != nil {
		log.WithError(err).WithFields(h.LogTags).Error("Failed to start event loop")
		return err
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-h.ctxt.Done()
		h.closeAll()
	}()
	return nil
}

// Done closed once the hub stops
func (h *Hub) Done() <-chan struct{} {
	return h.ctxt.Done()
}

// Stop stop the hub and close every channel, including those whose connect is still
// queued
func (h *Hub) Stop() {
	h.cancel()
	h.closeAll()
}

func (h *Hub) closeAll() {
	h.lock.Lock()
	entries := h.orderedLocked()
	pending := h.pending
	h.sessions = make(map[string]*sessionEntry)
	h.pending = make(map[string]Channel)
	h.lock.Unlock()
	for _, entry := range entries {
		entry.channel.Close()
	}
	for _, channel := range pending {
		channel.Close()
	}
	if closed := len(entries) + len(pending); closed > 0 {
		log.WithFields(h.LogTags).Infof("Closed %d channels", closed)
	}
}

// submit queue a connection lifecycle task param for the event loop. Waits for buffer
// room until the hub stops.
func (h *Hub) submit(task interface{}) bool {
	if err := h.tp.Submit(h.ctxt, task); err != nil {
		log.WithError(err).WithFields(h.LogTags).Debugf("Dropped %s", reflect.TypeOf(task))
		return false
	}
	return true
}

// trySubmit queue a broadcast task param for the event loop. Dropped if the task buffer
// is full.
func (h *Hub) trySubmit(task interface{}) {
	if err := h.tp.TrySubmit(task); err != nil {
		log.WithError(err).WithFields(h.LogTags).Warnf("Dropped %s", reflect.TypeOf(task))
	}
}

func (h *Hub) timestamp() string {
	return isoTimestamp(h.now())
}

// ========================================================================================
// Connection lifecycle

// Connect record a newly accepted channel. The channel is closed right away if the
// hub has stopped.
func (h *Hub) Connect(channel Channel) {
	sessionID := channel.ID()
	h.lock.Lock()
	if h.ctxt.Err() != nil {
		h.lock.Unlock()
		channel.Close()
		return
	}
	h.pending[sessionID] = channel
	h.lock.Unlock()
	if !h.submit(connectTask{channel: channel}) {
		h.lock.Lock()
		delete(h.pending, sessionID)
		h.lock.Unlock()
		channel.Close()
	}
}

// HandleInbound process one inbound frame from a session
func (h *Hub) HandleInbound(sessionID string, frame []byte) {
	h.submit(inboundTask{sessionID: sessionID, frame: frame})
}

// Disconnect remove a session whose channel closed
func (h *Hub) Disconnect(sessionID string) {
	h.submit(disconnectTask{sessionID: sessionID})
}

func (h *Hub) processConnect(param interface{}) error {
	task := param.(connectTask)
	sessionID := task.channel.ID()
	h.lock.Lock()
	defer h.lock.Unlock()
	delete(h.pending, sessionID)
	if h.ctxt.Err() != nil {
		task.channel.Close()
		return nil
	}
	if entry, ok := h.sessions[sessionID]; ok {
		log.WithFields(h.LogTags).Warnf("Session %s connected again, replacing its channel", sessionID)
		entry.channel = task.channel
		return nil
	}
	h.nextSeq++
	h.sessions[sessionID] = &sessionEntry{
		Session: Session{SessionID: sessionID, ConnectedAt: h.now()},
		seq:     h.nextSeq,
		channel: task.channel,
	}
	log.WithFields(h.LogTags).Debugf("Session %s connected (%d total)", sessionID, len(h.sessions))
	return nil
}

func (h *Hub) processInbound(param interface{}) error {
	task := param.(inboundTask)
	var frame Frame
	if err := json.Unmarshal(task.frame, &frame); err != nil {
		log.WithError(err).WithFields(h.LogTags).Debugf(
			"Dropping malformed frame from %s", task.sessionID,
		)
		return nil
	}
	switch frame.Event {
	case InboundRegister:
		h.register(task.sessionID, frame.Data)
	case InboundPing:
		h.pong(task.sessionID)
	default:
		log.WithFields(h.LogTags).Debugf(
			"Ignoring unknown event '%s' from %s", frame.Event, task.sessionID,
		)
	}
	return nil
}

// register upsert the user identity of a session and re-broadcast presence
func (h *Hub) register(sessionID string, data json.RawMessage) {
	var payload registerPayload
	if len(data) > 0 {
		// A partially decoded payload still registers, with the fields it had
		if err := json.Unmarshal(data, &payload); err != nil {
			log.WithError(err).WithFields(h.LogTags).Warnf(
				"Malformed register payload from %s", sessionID,
			)
		}
	}

	h.lock.Lock()
	entry, ok := h.sessions[sessionID]
	if !ok {
		h.lock.Unlock()
		log.WithFields(h.LogTags).Warnf("Register from unknown session %s", sessionID)
		return
	}
	if entry.Registered {
		log.WithFields(h.LogTags).Infof(
			"Session %s re-registered, replacing '%s'", sessionID, entry.UserName,
		)
	}
	entry.UserID = payload.UserID
	entry.UserName = payload.UserName
	entry.Registered = true
	snapshot := h.snapshotLocked()
	targets := h.channelsLocked()
	h.lock.Unlock()

	log.WithFields(h.LogTags).Infof(
		"User '%s' (%s) registered on session %s", payload.UserName, payload.UserID, sessionID,
	)
	h.deliver(snapshot, targets)
}

func (h *Hub) pong(sessionID string) {
	h.lock.RLock()
	entry, ok := h.sessions[sessionID]
	h.lock.RUnlock()
	if !ok {
		return
	}
	h.deliver(Pong{Timestamp: h.now().UnixMilli()}, []Channel{entry.channel})
}

func (h *Hub) processDisconnect(param interface{}) error {
	task := param.(disconnectTask)
	h.lock.Lock()
	entry, ok := h.sessions[task.sessionID]
	if !ok {
		h.lock.Unlock()
		return nil
	}
	delete(h.sessions, task.sessionID)
	snapshot := h.snapshotLocked()
	targets := h.channelsLocked()
	h.lock.Unlock()

	log.WithFields(h.LogTags).Debugf(
		"Session %s (user '%s') disconnected (%d remaining)",
		task.sessionID, entry.UserName, snapshot.Count,
	)
	h.deliver(snapshot, targets)
	return nil
}

// ========================================================================================
// Presence

// orderedLocked registry entries in connection order. Caller holds the lock.
func (h *Hub) orderedLocked() []*sessionEntry {
	entries := make([]*sessionEntry, 0, len(h.sessions))
	for _, entry := range h.sessions {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	return entries
}

func (h *Hub) channelsLocked() []Channel {
	entries := h.orderedLocked()
	result := make([]Channel, 0, len(entries))
	for _, entry := range entries {
		result = append(result, entry.channel)
	}
	return result
}

func (h *Hub) snapshotLocked() ConnectedUsers {
	snapshot := ConnectedUsers{Count: len(h.sessions), Users: []PresenceUser{}}
	for _, entry := range h.orderedLocked() {
		if entry.UserName != "" {
			snapshot.Users = append(
				snapshot.Users, PresenceUser{UserName: entry.UserName, SocketID: entry.SessionID},
			)
		}
	}
	return snapshot
}

// ConnectionCount number of connected sessions
func (h *Hub) ConnectionCount() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.sessions)
}

// Sessions all connected sessions in connection order, including those which have
// not registered
func (h *Hub) Sessions() []Session {
	h.lock.RLock()
	defer h.lock.RUnlock()
	entries := h.orderedLocked()
	result := make([]Session, 0, len(entries))
	for _, entry := range entries {
		result = append(result, entry.Session)
	}
	return result
}

// PresenceSnapshot the presence snapshot as broadcast to clients
func (h *Hub) PresenceSnapshot() ConnectedUsers {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return h.snapshotLocked()
}

// BroadcastConnectedUsers re-send the presence snapshot to every session
func (h *Hub) BroadcastConnectedUsers() {
	h.trySubmit(presenceTask{})
}

func (h *Hub) processPresence(_ interface{}) error {
	h.lock.RLock()
	snapshot := h.snapshotLocked()
	targets := h.channelsLocked()
	h.lock.RUnlock()
	h.deliver(snapshot, targets)
	return nil
}

// ========================================================================================
// Delivery

// deliver encode an event once and hand it to every target channel
func (h *Hub) deliver(ev Event, targets []Channel) {
	if len(targets) == 0 {
		return
	}
	frame, err := EncodeFrame(ev)
	if err != nil {
		log.WithError(err).WithFields(h.LogTags).Errorf("Failed to encode %s", ev.EventName())
		return
	}
	h.send(ev.EventName(), frame, targets)
}

// send hand an encoded frame to every target channel
func (h *Hub) send(event string, frame []byte, targets []Channel) {
	dropped := 0
	for _, channel := range targets {
		if !channel.Send(frame) {
			dropped++
		}
	}
	if dropped > 0 {
		log.WithFields(h.LogTags).Debugf(
			"%s dropped by %d of %d channels", event, dropped, len(targets),
		)
	}
}

func (h *Hub) processPublish(param interface{}) error {
	task := param.(publishTask)
	h.lock.RLock()
	targets := h.channelsLocked()
	h.lock.RUnlock()
	h.send(task.event, task.frame, targets)
	return nil
}

func (h *Hub) processDiagnostic(param interface{}) error {
	task := param.(diagnosticTask)
	h.lock.RLock()
	targets := h.channelsLocked()
	h.lock.RUnlock()
	h.deliver(TestBroadcast{
		Message:          task.message,
		ConnectedClients: len(targets),
		Timestamp:        task.timestamp,
	}, targets)
	return nil
}

// publish encode the event on the caller's goroutine and queue the frame for delivery.
// The queued frame shares no memory with the caller's slices or maps.
func (h *Hub) publish(ev Event) {
	frame, err := EncodeFrame(ev)
	if err != nil {
		log.WithError(err).WithFields(h.LogTags).Errorf("Failed to encode %s", ev.EventName())
		return
	}
	h.trySubmit(publishTask{event: ev.EventName(), frame: frame})
}
