// Package http exposes the ledger over a JSON API built with huma.
package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shopspring/decimal"

	"github.com/neomorfeo/croptrace/internal/app"
	"github.com/neomorfeo/croptrace/internal/domain"
)

// CallerHeader carries the account on whose behalf a request is made.
const CallerHeader = "X-Account"

const timeFormat = time.RFC3339

// Register adds all ledger API routes to the Huma API.
func Register(api huma.API, svc *app.LedgerService) {
	registerRoles(api, svc)
	registerAccounts(api, svc)
	registerOrigins(api, svc)
	registerProducts(api, svc)
	registerEntries(api, svc)
}

// parseAmount reads an optional decimal amount from a request field.
func parseAmount(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &domain.ArgumentError{Field: field, Reason: "not a decimal number"}
	}
	return d, nil
}

// parseRequiredAmount is parseAmount for fields where a blank value is an
// error rather than zero.
func parseRequiredAmount(field, raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, &domain.ArgumentError{Field: field, Reason: "must be set"}
	}
	return parseAmount(field, raw)
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		return huma.Error403Forbidden(err.Error())
	case errors.Is(err, domain.ErrInsufficientPayment):
		return huma.NewError(http.StatusPaymentRequired, err.Error())
	case errors.Is(err, domain.ErrInvalidArgument):
		return huma.Error400BadRequest(err.Error())
	}

	return huma.Error500InternalServerError("internal server error")
}
