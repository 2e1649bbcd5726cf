package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shopspring/decimal"

	"github.com/neomorfeo/croptrace/internal/app"
	"github.com/neomorfeo/croptrace/internal/domain"
)

// OriginResponse is the API representation of an origin lot.
type OriginResponse struct {
	ID                int64  `json:"id" doc:"Lot key"`
	Name              string `json:"name" doc:"Display name"`
	Price             string `json:"price" doc:"Asking price, as a decimal string"`
	Status            string `json:"status" doc:"Lifecycle state"`
	Originator        string `json:"originator" doc:"Account that planted the lot"`
	Latitude          string `json:"latitude" doc:"Latitude as supplied"`
	Longitude         string `json:"longitude" doc:"Longitude as supplied"`
	Distributor       string `json:"distributor,omitempty" doc:"Distributor on record"`
	Buyer             string `json:"buyer,omitempty" doc:"Manufacturer that ordered the lot"`
	ProducedProductID int64  `json:"produced_product_id,omitempty" doc:"Product lot made from this lot"`
	CreatedAt         string `json:"created_at" doc:"Creation timestamp (RFC 3339)"`
	UpdatedAt         string `json:"updated_at" doc:"Last update timestamp (RFC 3339)"`
}

func toOriginResponse(l domain.OriginLot) OriginResponse {
	return OriginResponse{
		ID:                int64(l.ID),
		Name:              l.Name,
		Price:             l.Price.String(),
		Status:            string(l.Status),
		Originator:        string(l.Originator),
		Latitude:          l.Location.Latitude,
		Longitude:         l.Location.Longitude,
		Distributor:       string(l.Distributor),
		Buyer:             string(l.Buyer),
		ProducedProductID: int64(l.ProducedProductID),
		CreatedAt:         l.CreatedAt.Format(timeFormat),
		UpdatedAt:         l.UpdatedAt.Format(timeFormat),
	}
}

// ProductResponse is the API representation of a product lot.
type ProductResponse struct {
	ID             int64  `json:"id" doc:"Lot key"`
	Name           string `json:"name" doc:"Display name"`
	Price          string `json:"price" doc:"Current price, as a decimal string"`
	Status         string `json:"status" doc:"Lifecycle state"`
	Manufacturer   string `json:"manufacturer" doc:"Account that produced the lot"`
	Latitude       string `json:"latitude" doc:"Latitude as supplied"`
	Longitude      string `json:"longitude" doc:"Longitude as supplied"`
	Distributor    string `json:"distributor,omitempty" doc:"Distributor on record"`
	Retailer       string `json:"retailer,omitempty" doc:"Retailer on record"`
	Buyer          string `json:"buyer,omitempty" doc:"Consumer that bought the lot"`
	SourceOriginID int64  `json:"source_origin_id" doc:"Origin lot the product was made from"`
	CreatedAt      string `json:"created_at" doc:"Creation timestamp (RFC 3339)"`
	UpdatedAt      string `json:"updated_at" doc:"Last update timestamp (RFC 3339)"`
}

func toProductResponse(l domain.ProductLot) ProductResponse {
	return ProductResponse{
		ID:             int64(l.ID),
		Name:           l.Name,
		Price:          l.Price.String(),
		Status:         string(l.Status),
		Manufacturer:   string(l.Manufacturer),
		Latitude:       l.Location.Latitude,
		Longitude:      l.Location.Longitude,
		Distributor:    string(l.Distributor),
		Retailer:       string(l.Retailer),
		Buyer:          string(l.Buyer),
		SourceOriginID: int64(l.SourceOriginID),
		CreatedAt:      l.CreatedAt.Format(timeFormat),
		UpdatedAt:      l.UpdatedAt.Format(timeFormat),
	}
}

// --- Plant ---

type PlantInput struct {
	Caller string `header:"X-Account" required:"true" doc:"Calling account"`
	Body   struct {
		ID        int64  `json:"id" doc:"Caller-chosen lot key"`
		Name      string `json:"name" maxLength:"255" doc:"Display name"`
		Price     string `json:"price" doc:"Asking price, as a decimal string"`
		Latitude  string `json:"latitude,omitempty" doc:"Latitude as supplied"`
		Longitude string `json:"longitude,omitempty" doc:"Longitude as supplied"`
	}
}

type OriginOutput struct {
	Body OriginResponse
}

// --- Produce ---

type ProduceInput struct {
	Caller string `header:"X-Account" required:"true" doc:"Calling account"`
	Body   struct {
		ID        int64  `json:"id" doc:"Caller-chosen lot key"`
		Name      string `json:"name" maxLength:"255" doc:"Display name"`
		Price     string `json:"price" doc:"Wholesale price, as a decimal string"`
		Latitude  string `json:"latitude,omitempty" doc:"Latitude as supplied"`
		Longitude string `json:"longitude,omitempty" doc:"Longitude as supplied"`
		OriginID  int64  `json:"origin_id" doc:"Delivered origin lot consumed by production"`
	}
}

type ProductOutput struct {
	Body ProductResponse
}

// --- Get ---

type GetLotInput struct {
	ID int64 `path:"id" doc:"Lot key"`
}

// --- List ---

type ListLotsInput struct {
	Status string `query:"status" required:"false" doc:"Filter by status"`
	Limit  int    `query:"limit" required:"false" default:"50" doc:"Max results"`
	Offset int    `query:"offset" required:"false" default:"0" doc:"Pagination offset"`
}

type ListOriginsOutput struct {
	Body []OriginResponse
}

type ListProductsOutput struct {
	Body []ProductResponse
}

// --- Transition ---

type OriginEventInput struct {
	Caller string `header:"X-Account" required:"true" doc:"Calling account"`
	ID     int64  `path:"id" doc:"Lot key"`
	Body   struct {
		Event string `json:"event" doc:"Lifecycle event to trigger" enum:"check,harvest,order,ship,fetch,deliver"`
		Value string `json:"value,omitempty" doc:"Attached payment for order, as a decimal string"`
	}
}

type ProductEventInput struct {
	Caller string `header:"X-Account" required:"true" doc:"Calling account"`
	ID     int64  `path:"id" doc:"Lot key"`
	Body   struct {
		Event       string `json:"event" doc:"Lifecycle event to trigger" enum:"order,ship,fetch,deliver,put_on_sale,buy"`
		Value       string `json:"value,omitempty" doc:"Attached payment for order and buy, as a decimal string"`
		RetailPrice string `json:"retail_price,omitempty" doc:"Retail price for put_on_sale, as a decimal string"`
	}
}

func registerOrigins(api huma.API, svc *app.LedgerService) {
	huma.Register(api, huma.Operation{
		OperationID:   "plant-origin",
		Method:        http.MethodPost,
		Path:          "/api/v1/origins",
		Summary:       "Plant a new origin lot",
		Tags:          []string{"Origins"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *PlantInput) (*OriginOutput, error) {
		price, err := parseRequiredAmount("price", input.Body.Price)
		if err != nil {
			return nil, toHumaError(err)
		}
		lot, err := svc.Plant(ctx, domain.Account(input.Caller), domain.OriginID(input.Body.ID),
			input.Body.Name, price,
			domain.Location{Latitude: input.Body.Latitude, Longitude: input.Body.Longitude})
		if err != nil {
			return nil, toHumaError(err)
		}
		return &OriginOutput{Body: toOriginResponse(lot)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-origin",
		Method:      http.MethodGet,
		Path:        "/api/v1/origins/{id}",
		Summary:     "Get an origin lot by key",
		Tags:        []string{"Origins"},
	}, func(ctx context.Context, input *GetLotInput) (*OriginOutput, error) {
		lot, err := svc.GetOrigin(ctx, domain.OriginID(input.ID))
		if err != nil {
			return nil, toHumaError(err)
		}
		return &OriginOutput{Body: toOriginResponse(lot)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-origins",
		Method:      http.MethodGet,
		Path:        "/api/v1/origins",
		Summary:     "List origin lots",
		Tags:        []string{"Origins"},
	}, func(ctx context.Context, input *ListLotsInput) (*ListOriginsOutput, error) {
		filter := domain.OriginFilter{
			Limit:  input.Limit,
			Offset: input.Offset,
		}
		if input.Status != "" {
			s := domain.OriginStatus(input.Status)
			filter.Status = &s
		}

		lots, err := svc.ListOrigins(ctx, filter)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]OriginResponse, len(lots))
		for i, l := range lots {
			resp[i] = toOriginResponse(l)
		}
		return &ListOriginsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-origin",
		Method:      http.MethodPost,
		Path:        "/api/v1/origins/{id}/events",
		Summary:     "Trigger an origin lifecycle event",
		Tags:        []string{"Origins"},
	}, func(ctx context.Context, input *OriginEventInput) (*OriginOutput, error) {
		value, err := parseAmount("value", input.Body.Value)
		if err != nil {
			return nil, toHumaError(err)
		}
		lot, err := svc.AdvanceOrigin(ctx, domain.Account(input.Caller), domain.OriginID(input.ID),
			domain.OriginEvent(input.Body.Event), value)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &OriginOutput{Body: toOriginResponse(lot)}, nil
	})
}

func registerProducts(api huma.API, svc *app.LedgerService) {
	huma.Register(api, huma.Operation{
		OperationID:   "produce-product",
		Method:        http.MethodPost,
		Path:          "/api/v1/products",
		Summary:       "Produce a product lot from a delivered origin lot",
		Tags:          []string{"Products"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *ProduceInput) (*ProductOutput, error) {
		price, err := parseRequiredAmount("price", input.Body.Price)
		if err != nil {
			return nil, toHumaError(err)
		}
		lot, err := svc.Produce(ctx, domain.Account(input.Caller), domain.ProductID(input.Body.ID),
			input.Body.Name, price,
			domain.Location{Latitude: input.Body.Latitude, Longitude: input.Body.Longitude},
			domain.OriginID(input.Body.OriginID))
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ProductOutput{Body: toProductResponse(lot)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-product",
		Method:      http.MethodGet,
		Path:        "/api/v1/products/{id}",
		Summary:     "Get a product lot by key",
		Tags:        []string{"Products"},
	}, func(ctx context.Context, input *GetLotInput) (*ProductOutput, error) {
		lot, err := svc.GetProduct(ctx, domain.ProductID(input.ID))
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ProductOutput{Body: toProductResponse(lot)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-products",
		Method:      http.MethodGet,
		Path:        "/api/v1/products",
		Summary:     "List product lots",
		Tags:        []string{"Products"},
	}, func(ctx context.Context, input *ListLotsInput) (*ListProductsOutput, error) {
		filter := domain.ProductFilter{
			Limit:  input.Limit,
			Offset: input.Offset,
		}
		if input.Status != "" {
			s := domain.ProductStatus(input.Status)
			filter.Status = &s
		}

		lots, err := svc.ListProducts(ctx, filter)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]ProductResponse, len(lots))
		for i, l := range lots {
			resp[i] = toProductResponse(l)
		}
		return &ListProductsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-product",
		Method:      http.MethodPost,
		Path:        "/api/v1/products/{id}/events",
		Summary:     "Trigger a product lifecycle event",
		Tags:        []string{"Products"},
	}, func(ctx context.Context, input *ProductEventInput) (*ProductOutput, error) {
		value, err := parseAmount("value", input.Body.Value)
		if err != nil {
			return nil, toHumaError(err)
		}
		var retailPrice *decimal.Decimal
		if input.Body.RetailPrice != "" {
			p, err := parseRequiredAmount("retail_price", input.Body.RetailPrice)
			if err != nil {
				return nil, toHumaError(err)
			}
			retailPrice = &p
		}
		lot, err := svc.AdvanceProduct(ctx, domain.Account(input.Caller), domain.ProductID(input.ID),
			domain.ProductEvent(input.Body.Event), value, retailPrice)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ProductOutput{Body: toProductResponse(lot)}, nil
	})
}
