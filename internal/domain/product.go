package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductID is the key of a product lot.
type ProductID int64

// ProductStatus represents the lifecycle state of a product lot.
type ProductStatus string

const (
	ProductProduced         ProductStatus = "produced"
	ProductOrdered          ProductStatus = "ordered"
	ProductReadyForShipping ProductStatus = "ready_for_shipping"
	ProductShipping         ProductStatus = "shipping"
	ProductDelivered        ProductStatus = "delivered"
	ProductOnSale           ProductStatus = "on_sale"
	ProductSold             ProductStatus = "sold"
)

// ProductEvent represents an action that advances a product lot.
type ProductEvent string

const (
	ProductEventOrder     ProductEvent = "order"
	ProductEventShip      ProductEvent = "ship"
	ProductEventFetch     ProductEvent = "fetch"
	ProductEventDeliver   ProductEvent = "deliver"
	ProductEventPutOnSale ProductEvent = "put_on_sale"
	ProductEventBuy       ProductEvent = "buy"
)

// ProductTransitions defines the strictly forward product lifecycle.
var ProductTransitions = []Transition[ProductStatus, ProductEvent]{
	{Event: ProductEventOrder, Src: ProductProduced, Dst: ProductOrdered},
	{Event: ProductEventShip, Src: ProductOrdered, Dst: ProductReadyForShipping},
	{Event: ProductEventFetch, Src: ProductReadyForShipping, Dst: ProductShipping},
	{Event: ProductEventDeliver, Src: ProductShipping, Dst: ProductDelivered},
	{Event: ProductEventPutOnSale, Src: ProductDelivered, Dst: ProductOnSale},
	{Event: ProductEventBuy, Src: ProductOnSale, Dst: ProductSold},
}

// ProductLot is a manufactured batch derived from exactly one origin lot.
type ProductLot struct {
	ID             ProductID
	Name           string
	Price          decimal.Decimal
	Status         ProductStatus
	Manufacturer   Account
	Location       Location
	Distributor    Account
	Retailer       Account
	Buyer          Account
	SourceOriginID OriginID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewProductLot creates a product lot in the initial "produced" state.
func NewProductLot(id ProductID, name string, price decimal.Decimal, loc Location, manufacturer Account, source OriginID) ProductLot {
	now := time.Now().UTC()
	return ProductLot{
		ID:             id,
		Name:           name,
		Price:          price,
		Status:         ProductProduced,
		Manufacturer:   manufacturer,
		Location:       loc,
		SourceOriginID: source,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ProductFilter holds optional criteria for listing product lots.
type ProductFilter struct {
	Status *ProductStatus
	Limit  int
	Offset int
}
