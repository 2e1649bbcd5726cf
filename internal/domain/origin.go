package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OriginID is the key of an origin lot.
type OriginID int64

// OriginStatus represents the lifecycle state of an origin lot.
type OriginStatus string

const (
	OriginPlanted          OriginStatus = "planted"
	OriginRipe             OriginStatus = "ripe"
	OriginHarvested        OriginStatus = "harvested"
	OriginOrdered          OriginStatus = "ordered"
	OriginReadyForShipping OriginStatus = "ready_for_shipping"
	OriginShipping         OriginStatus = "shipping"
	OriginDelivered        OriginStatus = "delivered"
	OriginConsumed         OriginStatus = "consumed"
)

// OriginEvent represents an action that advances an origin lot.
type OriginEvent string

const (
	OriginEventCheck   OriginEvent = "check"
	OriginEventHarvest OriginEvent = "harvest"
	OriginEventOrder   OriginEvent = "order"
	OriginEventShip    OriginEvent = "ship"
	OriginEventFetch   OriginEvent = "fetch"
	OriginEventDeliver OriginEvent = "deliver"
	OriginEventConsume OriginEvent = "consume"
)

// OriginTransitions defines the strictly forward origin lifecycle.
// This is domain knowledge consumed by the FSM adapter.
var OriginTransitions = []Transition[OriginStatus, OriginEvent]{
	{Event: OriginEventCheck, Src: OriginPlanted, Dst: OriginRipe},
	{Event: OriginEventHarvest, Src: OriginRipe, Dst: OriginHarvested},
	{Event: OriginEventOrder, Src: OriginHarvested, Dst: OriginOrdered},
	{Event: OriginEventShip, Src: OriginOrdered, Dst: OriginReadyForShipping},
	{Event: OriginEventFetch, Src: OriginReadyForShipping, Dst: OriginShipping},
	{Event: OriginEventDeliver, Src: OriginShipping, Dst: OriginDelivered},
	{Event: OriginEventConsume, Src: OriginDelivered, Dst: OriginConsumed},
}

// OriginLot is a raw input batch tracked from planting until it is consumed
// by manufacturing.
type OriginLot struct {
	ID                OriginID
	Name              string
	Price             decimal.Decimal
	Status            OriginStatus
	Originator        Account
	Location          Location
	Distributor       Account
	Buyer             Account
	ProducedProductID ProductID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewOriginLot creates an origin lot in the initial "planted" state.
func NewOriginLot(id OriginID, name string, price decimal.Decimal, loc Location, originator Account) OriginLot {
	now := time.Now().UTC()
	return OriginLot{
		ID:         id,
		Name:       name,
		Price:      price,
		Status:     OriginPlanted,
		Originator: originator,
		Location:   loc,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// OriginFilter holds optional criteria for listing origin lots.
type OriginFilter struct {
	Status *OriginStatus
	Limit  int
	Offset int
}
