package broadcast

import (
	"fmt"
	"strings"

	"github.com/alwitt/rentalhub/models"
)

// protocolLabel handover reads "odovzdávací"; every other kind reads "preberací"
func protocolLabel(kind models.ProtocolKind) string {
	if kind == models.ProtocolHandover {
		return "odovzdávací"
	}
	return "preberací"
}

func rentalCreatedMessage(actor string, rental models.Rental) string {
	return fmt.Sprintf("%s vytvoril nový prenájom pre %s", actor, rental.CustomerName)
}

func rentalUpdatedMessage(actor string, rental models.Rental) string {
	return fmt.Sprintf("%s upravil prenájom pre %s", actor, rental.CustomerName)
}

func rentalDeletedMessage(actor, customerName string) string {
	return fmt.Sprintf("%s zmazal prenájom pre %s", actor, customerName)
}

func vehicleUpdatedMessage(actor string, vehicle models.Vehicle) string {
	name := strings.TrimSpace(fmt.Sprintf("%s %s", vehicle.Brand, vehicle.Model))
	if vehicle.LicensePlate != "" {
		return fmt.Sprintf("%s upravil vozidlo %s (%s)", actor, name, vehicle.LicensePlate)
	}
	return fmt.Sprintf("%s upravil vozidlo %s", actor, name)
}

func customerCreatedMessage(actor string, customer models.Customer) string {
	return fmt.Sprintf("%s vytvoril nového zákazníka %s", actor, customer.Name)
}

func protocolCreatedMessage(actor string, kind models.ProtocolKind) string {
	return fmt.Sprintf("%s vytvoril %s protokol", actor, protocolLabel(kind))
}

func protocolUpdatedMessage(actor string, kind models.ProtocolKind) string {
	return fmt.Sprintf("%s upravil %s protokol", actor, protocolLabel(kind))
}

func migrationCompletedMessage(name string, success bool) string {
	if success {
		return fmt.Sprintf("Migrácia %s bola úspešne dokončená", name)
	}
	return fmt.Sprintf("Migrácia %s zlyhala", name)
}
