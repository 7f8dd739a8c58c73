package ingress

import (
	"github.com/alwitt/rentalhub/broadcast"
	"github.com/alwitt/rentalhub/models"
)

// Event kinds accepted from out-of-process producers. They match the outbound event names.
const (
	KindRentalCreated      = broadcast.EventRentalCreated
	KindRentalUpdated      = broadcast.EventRentalUpdated
	KindRentalDeleted      = broadcast.EventRentalDeleted
	KindVehicleUpdated     = broadcast.EventVehicleUpdated
	KindCustomerCreated    = broadcast.EventCustomerCreated
	KindProtocolCreated    = broadcast.EventProtocolCreated
	KindProtocolUpdated    = broadcast.EventProtocolUpdated
	KindSystemNotification = broadcast.EventSystemNotification
	KindMigrationCompleted = broadcast.EventMigrationCompleted
	KindTestBroadcast      = broadcast.EventTestBroadcast
	KindConnectedUsers     = broadcast.EventConnectedUsers
)

// command is one decoded publish request
type command interface {
	apply(hub broadcast.Publisher)
}

// RentalCreatedRequest request to announce a new rental
type RentalCreatedRequest struct {
	Rental    models.Rental `json:"rental" validate:"required"`
	CreatedBy string        `json:"createdBy" validate:"required"`
}

func (r *RentalCreatedRequest) apply(hub broadcast.Publisher) {
	hub.BroadcastRentalCreated(r.Rental, r.CreatedBy)
}

// RentalUpdatedRequest request to announce a rental update
type RentalUpdatedRequest struct {
	Rental    models.Rental `json:"rental" validate:"required"`
	UpdatedBy string        `json:"updatedBy" validate:"required"`
	Changes   []string      `json:"changes,omitempty"`
}

func (r *RentalUpdatedRequest) apply(hub broadcast.Publisher) {
	hub.BroadcastRentalUpdated(r.Rental, r.UpdatedBy, r.Changes)
}

// RentalDeletedRequest request to announce a rental deletion
type RentalDeletedRequest struct {
	RentalID     string `json:"rentalId" validate:"required"`
	CustomerName string `json:"customerName" validate:"required"`
	DeletedBy    string `json:"deletedBy" validate:"required"`
}

func (r *RentalDeletedRequest) apply(hub broadcast.Publisher) {
	hub.BroadcastRentalDeleted(r.RentalID, r.CustomerName, r.DeletedBy)
}

// VehicleUpdatedRequest request to announce a vehicle update
type VehicleUpdatedRequest struct {
	Vehicle   models.Vehicle `json:"vehicle" validate:"required"`
	UpdatedBy string         `json:"updatedBy" validate:"required"`
	Changes   []string       `json:"changes,omitempty"`
}

func (r *VehicleUpdatedRequest) apply(hub broadcast.Publisher) {
	hub.BroadcastVehicleUpdated(r.Vehicle, r.UpdatedBy, r.Changes)
}

// CustomerCreatedRequest request to announce a new customer
type CustomerCreatedRequest struct {
	Customer  models.Customer `json:"customer" validate:"required"`
	CreatedBy string          `json:"createdBy" validate:"required"`
}

func (r *CustomerCreatedRequest) apply(hub broadcast.Publisher) {
	hub.BroadcastCustomerCreated(r.Customer, r.CreatedBy)
}

// ProtocolCreatedRequest request to announce a new handover / return protocol
type ProtocolCreatedRequest struct {
	RentalID     string              `json:"rentalId" validate:"required"`
	ProtocolType models.ProtocolKind `json:"protocolType" validate:"required"`
	ProtocolID   string              `json:"protocolId" validate:"required"`
	CreatedBy    string              `json:"createdBy" validate:"required"`
}

func (r *ProtocolCreatedRequest) apply(hub broadcast.Publisher) {
	hub.BroadcastProtocolCreated(r.RentalID, r.ProtocolType, r.ProtocolID, r.CreatedBy)
}

// ProtocolUpdatedRequest request to announce a handover / return protocol update
type ProtocolUpdatedRequest struct {
	RentalID     string              `json:"rentalId" validate:"required"`
	ProtocolType models.ProtocolKind `json:"protocolType" validate:"required"`
	ProtocolID   string              `json:"protocolId" validate:"required"`
	UpdatedBy    string              `json:"updatedBy" validate:"required"`
	Changes      []string            `json:"changes,omitempty"`
}

func (r *ProtocolUpdatedRequest) apply(hub broadcast.Publisher) {
	hub.BroadcastProtocolUpdated(
		r.RentalID, r.ProtocolType, r.ProtocolID, r.UpdatedBy, r.Changes,
	)
}

// SystemNotificationRequest request to send a system notice
type SystemNotificationRequest struct {
	Type    string                 `json:"type" validate:"required"`
	Message string                 `json:"message" validate:"required"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (r *SystemNotificationRequest) apply(hub broadcast.Publisher) {
	hub.BroadcastSystemNotification(r.Type, r.Message, r.Details)
}

// MigrationCompletedRequest request to announce the result of a data migration
type MigrationCompletedRequest struct {
	MigrationName string                 `json:"migrationName" validate:"required"`
	Success       bool                   `json:"success"`
	Details       map[string]interface{} `json:"details,omitempty"`
}

func (r *MigrationCompletedRequest) apply(hub broadcast.Publisher) {
	hub.BroadcastMigrationCompleted(r.MigrationName, r.Success, r.Details)
}

// TestBroadcastRequest request for a diagnostic broadcast
type TestBroadcastRequest struct {
	Message string `json:"message" validate:"required"`
}

func (r *TestBroadcastRequest) apply(hub broadcast.Publisher) {
	hub.BroadcastTest(r.Message)
}

// connectedUsersRequest re-send the presence snapshot. Takes no body.
type connectedUsersRequest struct{}

func (r *connectedUsersRequest) apply(hub broadcast.Publisher) {
	hub.BroadcastConnectedUsers()
}

// newCommand allocate the request type for an event kind
func newCommand(kind string) (command, bool) {
	switch kind {
	case KindRentalCreated:
		return &RentalCreatedRequest{}, true
	case KindRentalUpdated:
		return &RentalUpdatedRequest{}, true
	case KindRentalDeleted:
		return &RentalDeletedRequest{}, true
	case KindVehicleUpdated:
		return &VehicleUpdatedRequest{}, true
	case KindCustomerCreated:
		return &CustomerCreatedRequest{}, true
	case KindProtocolCreated:
		return &ProtocolCreatedRequest{}, true
	case KindProtocolUpdated:
		return &ProtocolUpdatedRequest{}, true
	case KindSystemNotification:
		return &SystemNotificationRequest{}, true
	case KindMigrationCompleted:
		return &MigrationCompletedRequest{}, true
	case KindTestBroadcast:
		return &TestBroadcastRequest{}, true
	case KindConnectedUsers:
		return &connectedUsersRequest{}, true
	default:
		return nil, false
	}
}
