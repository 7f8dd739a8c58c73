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
	"encoding/json"
	"time"

	"github.com/alwitt/rentalhub/models"
)

// Outbound event names
const (
	EventRentalCreated      = "rental-created"
	EventRentalUpdated      = "rental-updated"
	EventRentalDeleted      = "rental-deleted"
	EventVehicleUpdated     = "vehicle-updated"
	EventCustomerCreated    = "customer-created"
	EventProtocolCreated    = "protocol-created"
	EventProtocolUpdated    = "protocol-updated"
	EventSystemNotification = "system-notification"
	EventMigrationCompleted = "migration-completed"
	EventTestBroadcast      = "test-broadcast"
	EventConnectedUsers     = "connected-users"
	EventPong               = "pong"
)

// Inbound client message names
const (
	InboundRegister = "register"
	InboundPing     = "ping"
)

// Event is one outbound message pushed to connected clients.
//
// The set of implementations is closed: one struct per event kind.
type Event interface {
	// EventName the event name on the wire
	EventName() string
	isEvent()
}

// Frame is the wire format for both inbound and outbound channel messages
type Frame struct {
	// Event is the event name
	Event string `json:"event"`
	// Data is the event payload
	Data json.RawMessage `json:"data,omitempty"`
}

// EncodeFrame serialize an event into its wire frame
func EncodeFrame(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&Frame{Event: ev.EventName(), Data: payload})
}

// isoTimestamp format a broadcast time as ISO-8601 in UTC with millisecond precision
func isoTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// normalizeChanges never send a null change list
func normalizeChanges(changes []string) []string {
	if changes == nil {
		return []string{}
	}
	return changes
}

// ========================================================================================

// RentalCreated a rental was created
type RentalCreated struct {
	Rental    models.Rental `json:"rental"`
	CreatedBy string        `json:"createdBy"`
	Message   string        `json:"message"`
	Timestamp string        `json:"timestamp"`
}

// RentalUpdated a rental was updated
type RentalUpdated struct {
	Rental    models.Rental `json:"rental"`
	UpdatedBy string        `json:"updatedBy"`
	Changes   []string      `json:"changes"`
	Message   string        `json:"message"`
	Timestamp string        `json:"timestamp"`
}

// RentalDeleted a rental was deleted
type RentalDeleted struct {
	RentalID     string `json:"rentalId"`
	CustomerName string `json:"customerName"`
	DeletedBy    string `json:"deletedBy"`
	Message      string `json:"message"`
	Timestamp    string `json:"timestamp"`
}

// VehicleUpdated a vehicle was updated
type VehicleUpdated struct {
	Vehicle   models.Vehicle `json:"vehicle"`
	UpdatedBy string         `json:"updatedBy"`
	Changes   []string       `json:"changes"`
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp"`
}

// CustomerCreated a customer was created
type CustomerCreated struct {
	Customer  models.Customer `json:"customer"`
	CreatedBy string          `json:"createdBy"`
	Message   string          `json:"message"`
	Timestamp string          `json:"timestamp"`
}

// ProtocolCreated a handover or return protocol was created
type ProtocolCreated struct {
	RentalID     string              `json:"rentalId"`
	ProtocolType models.ProtocolKind `json:"protocolType"`
	ProtocolID   string              `json:"protocolId"`
	CreatedBy    string              `json:"createdBy"`
	Message      string              `json:"message"`
	Timestamp    string              `json:"timestamp"`
}

// ProtocolUpdated a handover or return protocol was updated
type ProtocolUpdated struct {
	RentalID     string              `json:"rentalId"`
	ProtocolType models.ProtocolKind `json:"protocolType"`
	ProtocolID   string              `json:"protocolId"`
	UpdatedBy    string              `json:"updatedBy"`
	Changes      []string            `json:"changes"`
	Message      string              `json:"message"`
	Timestamp    string              `json:"timestamp"`
}

// SystemNotification a free-form system notice
type SystemNotification struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// MigrationCompleted a data migration finished
type MigrationCompleted struct {
	MigrationName string                 `json:"migrationName"`
	Success       bool                   `json:"success"`
	Details       map[string]interface{} `json:"details,omitempty"`
	Message       string                 `json:"message"`
	Timestamp     string                 `json:"timestamp"`
}

// TestBroadcast diagnostic broadcast
type TestBroadcast struct {
	Message          string `json:"message"`
	ConnectedClients int    `json:"connectedClients"`
	Timestamp        string `json:"timestamp"`
}

// PresenceUser one named user in a presence snapshot
type PresenceUser struct {
	UserName string `json:"userName"`
	SocketID string `json:"socketId"`
}

// ConnectedUsers the presence snapshot
type ConnectedUsers struct {
	Count int            `json:"count"`
	Users []PresenceUser `json:"users"`
}

// Pong reply to a client ping
type Pong struct {
	// Timestamp server time in epoch milliseconds
	Timestamp int64 `json:"timestamp"`
}

// EventName implements Event
func (RentalCreated) EventName() string { return EventRentalCreated }

// EventName implements Event
func (RentalUpdated) EventName() string { return EventRentalUpdated }

// EventName implements Event
func (RentalDeleted) EventName() string { return EventRentalDeleted }

// EventName implements Event
func (VehicleUpdated) EventName() string { return EventVehicleUpdated }

// EventName implements Event
func (CustomerCreated) EventName() string { return EventCustomerCreated }

// EventName implements Event
func (ProtocolCreated) EventName() string { return EventProtocolCreated }

// EventName implements Event
func (ProtocolUpdated) EventName() string { return EventProtocolUpdated }

// EventName implements Event
func (SystemNotification) EventName() string { return EventSystemNotification }

// EventName implements Event
func (MigrationCompleted) EventName() string { return EventMigrationCompleted }

// EventName implements Event
func (TestBroadcast) EventName() string { return EventTestBroadcast }

// EventName implements Event
func (ConnectedUsers) EventName() string { return EventConnectedUsers }

// EventName implements Event
func (Pong) EventName() string { return EventPong }

func (RentalCreated) isEvent()      {}
func (RentalUpdated) isEvent()      {}
func (RentalDeleted) isEvent()      {}
func (VehicleUpdated) isEvent()     {}
func (CustomerCreated) isEvent()    {}
func (ProtocolCreated) isEvent()    {}
func (ProtocolUpdated) isEvent()    {}
func (SystemNotification) isEvent() {}
func (MigrationCompleted) isEvent() {}
func (TestBroadcast) isEvent()      {}
func (ConnectedUsers) isEvent()     {}
func (Pong) isEvent()               {}
