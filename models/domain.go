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

// Package models holds the domain object shapes handed to the broadcast hub.
//
// These objects are already materialized and validated by the CRUD services before
// they reach the hub. The hub only serializes them into event envelopes.
package models

import "time"

// RentalStatus lifecycle status of a rental
type RentalStatus string

// Rental status values
const (
	RentalPending   RentalStatus = "pending"
	RentalActive    RentalStatus = "active"
	RentalFinished  RentalStatus = "finished"
	RentalCancelled RentalStatus = "cancelled"
)

// Rental one vehicle rental
type Rental struct {
	// ID is the rental ID
	ID string `json:"id" validate:"required"`
	// OrderNumber is the human facing order number
	OrderNumber string `json:"orderNumber,omitempty"`
	// CompanyID is the owning tenant
	CompanyID string `json:"companyId,omitempty"`
	// CustomerID is the renting customer
	CustomerID string `json:"customerId,omitempty"`
	// CustomerName is the display name of the renting customer
	CustomerName string `json:"customerName" validate:"required"`
	// VehicleID is the rented vehicle
	VehicleID string `json:"vehicleId,omitempty"`
	// StartDate is when the rental begins
	StartDate *time.Time `json:"startDate,omitempty"`
	// EndDate is when the rental ends
	EndDate *time.Time `json:"endDate,omitempty"`
	// TotalPrice is the rental price
	TotalPrice float64 `json:"totalPrice,omitempty"`
	// Deposit is the deposit amount
	Deposit float64 `json:"deposit,omitempty"`
	// Paid whether the rental has been paid
	Paid bool `json:"paid"`
	// Status is the rental status
	Status RentalStatus `json:"status,omitempty"`
	// HandoverPlace is where the vehicle is handed over
	HandoverPlace string `json:"handoverPlace,omitempty"`
}

// VehicleStatus availability of a vehicle
type VehicleStatus string

// Vehicle status values
const (
	VehicleAvailable   VehicleStatus = "available"
	VehicleRented      VehicleStatus = "rented"
	VehicleMaintenance VehicleStatus = "maintenance"
	VehicleRemoved     VehicleStatus = "removed"
)

// Vehicle one fleet vehicle
type Vehicle struct {
	// ID is the vehicle ID
	ID string `json:"id" validate:"required"`
	// CompanyID is the owning tenant
	CompanyID string `json:"companyId,omitempty"`
	// Brand is the vehicle make
	Brand string `json:"brand" validate:"required"`
	// Model is the vehicle model
	Model string `json:"model" validate:"required"`
	// LicensePlate is the registration plate
	LicensePlate string `json:"licensePlate" validate:"required"`
	// Year is the manufacture year
	Year int `json:"year,omitempty"`
	// Status is the vehicle availability
	Status VehicleStatus `json:"status,omitempty"`
}

// Customer one rental customer
type Customer struct {
	// ID is the customer ID
	ID string `json:"id" validate:"required"`
	// Name is the customer's display name
	Name string `json:"name" validate:"required"`
	// Email is the customer's email
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	// Phone is the customer's phone number
	Phone string `json:"phone,omitempty"`
}

// ProtocolKind which side of a rental a protocol documents
type ProtocolKind string

// Protocol kinds
const (
	// ProtocolHandover vehicle handed to the customer
	ProtocolHandover ProtocolKind = "handover"
	// ProtocolReturn vehicle returned by the customer
	ProtocolReturn ProtocolKind = "return"
)
