package broadcast

import "github.com/alwitt/rentalhub/models"

// Publish operations are fire-and-forget. The event is encoded at call time, queued
// for the event loop, and delivered to every session connected when it is processed.
// A full task buffer drops the event.

// BroadcastRentalCreated announce a new rental
func (h *Hub) BroadcastRentalCreated(rental models.Rental, createdBy string) {
	h.publish(RentalCreated{
		Rental:    rental,
		CreatedBy: createdBy,
		Message:   rentalCreatedMessage(createdBy, rental),
		Timestamp: h.timestamp(),
	})
}

// BroadcastRentalUpdated announce a rental update
func (h *Hub) BroadcastRentalUpdated(rental models.Rental, updatedBy string, changes []string) {
	h.publish(RentalUpdated{
		Rental:    rental,
		UpdatedBy: updatedBy,
		Changes:   normalizeChanges(changes),
		Message:   rentalUpdatedMessage(updatedBy, rental),
		Timestamp: h.timestamp(),
	})
}

// BroadcastRentalDeleted announce a rental deletion
func (h *Hub) BroadcastRentalDeleted(rentalID, customerName, deletedBy string) {
	h.publish(RentalDeleted{
		RentalID:     rentalID,
		CustomerName: customerName,
		DeletedBy:    deletedBy,
		Message:      rentalDeletedMessage(deletedBy, customerName),
		Timestamp:    h.timestamp(),
	})
}

// BroadcastVehicleUpdated announce a vehicle update
func (h *Hub) BroadcastVehicleUpdated(vehicle models.Vehicle, updatedBy string, changes []string) {
	h.publish(VehicleUpdated{
		Vehicle:   vehicle,
		UpdatedBy: updatedBy,
		Changes:   normalizeChanges(changes),
		Message:   vehicleUpdatedMessage(updatedBy, vehicle),
		Timestamp: h.timestamp(),
	})
}

// BroadcastCustomerCreated announce a new customer
func (h *Hub) BroadcastCustomerCreated(customer models.Customer, createdBy string) {
	h.publish(CustomerCreated{
		Customer:  customer,
		CreatedBy: createdBy,
		Message:   customerCreatedMessage(createdBy, customer),
		Timestamp: h.timestamp(),
	})
}

// BroadcastProtocolCreated announce a new handover / return protocol
func (h *Hub) BroadcastProtocolCreated(
	rentalID string, kind models.ProtocolKind, protocolID, createdBy string,
) {
	h.publish(ProtocolCreated{
		RentalID:     rentalID,
		ProtocolType: kind,
		ProtocolID:   protocolID,
		CreatedBy:    createdBy,
		Message:      protocolCreatedMessage(createdBy, kind),
		Timestamp:    h.timestamp(),
	})
}

// BroadcastProtocolUpdated announce a handover / return protocol update
func (h *Hub) BroadcastProtocolUpdated(
	rentalID string, kind models.ProtocolKind, protocolID, updatedBy string, changes []string,
) {
	h.publish(ProtocolUpdated{
		RentalID:     rentalID,
		ProtocolType: kind,
		ProtocolID:   protocolID,
		UpdatedBy:    updatedBy,
		Changes:      normalizeChanges(changes),
		Message:      protocolUpdatedMessage(updatedBy, kind),
		Timestamp:    h.timestamp(),
	})
}

// BroadcastSystemNotification send a system notice
func (h *Hub) BroadcastSystemNotification(
	notificationType, message string, details map[string]interface{},
) {
	h.publish(SystemNotification{
		Type:      notificationType,
		Message:   message,
		Details:   details,
		Timestamp: h.timestamp(),
	})
}

// BroadcastMigrationCompleted announce the result of a data migration
func (h *Hub) BroadcastMigrationCompleted(
	migrationName string, success bool, details map[string]interface{},
) {
	h.publish(MigrationCompleted{
		MigrationName: migrationName,
		Success:       success,
		Details:       details,
		Message:       migrationCompletedMessage(migrationName, success),
		Timestamp:     h.timestamp(),
	})
}

// BroadcastTest send a diagnostic broadcast carrying the current connection count
func (h *Hub) BroadcastTest(message string) {
	h.trySubmit(diagnosticTask{message: message, timestamp: h.timestamp()})
}
