package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/croptrace/internal/app"
	"github.com/neomorfeo/croptrace/internal/domain"
)

// RoleResponse reports whether an account holds a role.
type RoleResponse struct {
	Role    string `json:"role" doc:"Capability tag"`
	Account string `json:"account" doc:"Holder account"`
	Held    bool   `json:"held" doc:"Whether the grant currently exists"`
}

// AccountResponse is the API representation of an account balance.
type AccountResponse struct {
	Account string `json:"account" doc:"Account identifier"`
	Balance string `json:"balance" doc:"Funds held, as a decimal string"`
}

// --- Grant Role ---

type GrantRoleInput struct {
	Caller string `header:"X-Account" required:"true" doc:"Calling account"`
	Body   struct {
		Role    string `json:"role" enum:"ORIGIN_PRODUCER,MANUFACTURER,DISTRIBUTOR,RETAILER,CONSUMER,ADMIN" doc:"Capability tag"`
		Account string `json:"account" minLength:"1" doc:"Account receiving the role"`
	}
}

// --- Revoke Role / Check Role ---

type RoleInput struct {
	Caller  string `header:"X-Account" required:"false" doc:"Calling account"`
	Role    string `path:"role" doc:"Capability tag"`
	Account string `path:"account" doc:"Holder account"`
}

type RoleOutput struct {
	Body RoleResponse
}

// --- Deposit ---

type DepositInput struct {
	Caller  string `header:"X-Account" required:"true" doc:"Calling account"`
	Account string `path:"account" doc:"Account to fund"`
	Body    struct {
		Amount string `json:"amount" minLength:"1" doc:"Amount to credit, as a decimal string"`
	}
}

// --- Get Account ---

type GetAccountInput struct {
	Account string `path:"account" doc:"Account identifier"`
}

type AccountOutput struct {
	Body AccountResponse
}

func registerRoles(api huma.API, svc *app.LedgerService) {
	huma.Register(api, huma.Operation{
		OperationID:   "grant-role",
		Method:        http.MethodPost,
		Path:          "/api/v1/roles",
		Summary:       "Grant a role to an account",
		Tags:          []string{"Roles"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *GrantRoleInput) (*RoleOutput, error) {
		role, err := domain.ParseRole(input.Body.Role)
		if err != nil {
			return nil, toHumaError(err)
		}
		holder := domain.Account(input.Body.Account)
		if err := svc.Grant(ctx, domain.Account(input.Caller), role, holder); err != nil {
			return nil, toHumaError(err)
		}
		return &RoleOutput{Body: RoleResponse{Role: string(role), Account: string(holder), Held: true}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-role",
		Method:      http.MethodDelete,
		Path:        "/api/v1/roles/{role}/{account}",
		Summary:     "Revoke a role from an account",
		Tags:        []string{"Roles"},
	}, func(ctx context.Context, input *RoleInput) (*RoleOutput, error) {
		role, err := domain.ParseRole(input.Role)
		if err != nil {
			return nil, toHumaError(err)
		}
		holder := domain.Account(input.Account)
		if err := svc.Revoke(ctx, domain.Account(input.Caller), role, holder); err != nil {
			return nil, toHumaError(err)
		}
		return &RoleOutput{Body: RoleResponse{Role: string(role), Account: string(holder), Held: false}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-role",
		Method:      http.MethodGet,
		Path:        "/api/v1/roles/{role}/{account}",
		Summary:     "Check whether an account holds a role",
		Tags:        []string{"Roles"},
	}, func(ctx context.Context, input *RoleInput) (*RoleOutput, error) {
		role, err := domain.ParseRole(input.Role)
		if err != nil {
			return nil, toHumaError(err)
		}
		held, err := svc.HasRole(ctx, role, domain.Account(input.Account))
		if err != nil {
			return nil, toHumaError(err)
		}
		return &RoleOutput{Body: RoleResponse{Role: string(role), Account: input.Account, Held: held}}, nil
	})
}

func registerAccounts(api huma.API, svc *app.LedgerService) {
	huma.Register(api, huma.Operation{
		OperationID: "deposit",
		Method:      http.MethodPost,
		Path:        "/api/v1/accounts/{account}/deposits",
		Summary:     "Credit funds to an account",
		Tags:        []string{"Accounts"},
	}, func(ctx context.Context, input *DepositInput) (*AccountOutput, error) {
		amount, err := parseRequiredAmount("amount", input.Body.Amount)
		if err != nil {
			return nil, toHumaError(err)
		}
		account := domain.Account(input.Account)
		if err := svc.Deposit(ctx, domain.Account(input.Caller), account, amount); err != nil {
			return nil, toHumaError(err)
		}
		return balanceOutput(ctx, svc, account)
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-account",
		Method:      http.MethodGet,
		Path:        "/api/v1/accounts/{account}",
		Summary:     "Get the balance of an account",
		Tags:        []string{"Accounts"},
	}, func(ctx context.Context, input *GetAccountInput) (*AccountOutput, error) {
		return balanceOutput(ctx, svc, domain.Account(input.Account))
	})
}

func balanceOutput(ctx context.Context, svc *app.LedgerService, account domain.Account) (*AccountOutput, error) {
	balance, err := svc.Balance(ctx, account)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &AccountOutput{Body: AccountResponse{Account: string(account), Balance: balance.String()}}, nil
}
