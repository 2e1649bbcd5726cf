package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/croptrace/internal/app"
	"github.com/neomorfeo/croptrace/internal/domain"
)

// SettlementResponse describes the money moved by a paid transition.
type SettlementResponse struct {
	Payer    string `json:"payer"`
	Payee    string `json:"payee"`
	Price    string `json:"price"`
	Attached string `json:"attached"`
	Refund   string `json:"refund"`
}

// GrantResponse describes a role grant or revocation.
type GrantResponse struct {
	Role   string `json:"role"`
	Holder string `json:"holder"`
}

// DepositResponse describes a credit to an account.
type DepositResponse struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// EntryResponse is the API representation of a ledger entry.
type EntryResponse struct {
	Seq        int64               `json:"seq" doc:"Position in the ledger log"`
	ID         string              `json:"id" doc:"Entry identifier"`
	Kind       string              `json:"kind" doc:"Entry kind"`
	LotID      int64               `json:"lot_id,omitempty" doc:"Lot the entry concerns"`
	Event      string              `json:"event" doc:"Event that produced the entry"`
	State      string              `json:"state,omitempty" doc:"Lot state after the event"`
	Actor      string              `json:"actor" doc:"Account that triggered the event"`
	Settlement *SettlementResponse `json:"settlement,omitempty"`
	Grant      *GrantResponse      `json:"grant,omitempty"`
	Deposit    *DepositResponse    `json:"deposit,omitempty"`
	RecordedAt string              `json:"recorded_at" doc:"Recording timestamp (RFC 3339)"`
}

func toEntryResponse(e domain.Entry) EntryResponse {
	resp := EntryResponse{
		Seq:        e.Seq,
		ID:         e.ID,
		Kind:       string(e.Kind),
		LotID:      e.LotID,
		Event:      e.Event,
		State:      e.State,
		Actor:      string(e.Actor),
		RecordedAt: e.RecordedAt.Format(timeFormat),
	}
	if s := e.Settlement; s != nil {
		resp.Settlement = &SettlementResponse{
			Payer:    string(s.Payer),
			Payee:    string(s.Payee),
			Price:    s.Price.String(),
			Attached: s.Attached.String(),
			Refund:   s.Refund.String(),
		}
	}
	if g := e.Grant; g != nil {
		resp.Grant = &GrantResponse{Role: string(g.Role), Holder: string(g.Holder)}
	}
	if d := e.Deposit; d != nil {
		resp.Deposit = &DepositResponse{Account: string(d.Account), Amount: d.Amount.String()}
	}
	return resp
}

type ListEntriesInput struct {
	Kind  string `query:"kind" required:"false" doc:"Filter by entry kind"`
	LotID int64  `query:"lot_id" required:"false" doc:"Filter by lot key. Origin and product lots may share a key; combine with kind to select one."`
	After int64  `query:"after" required:"false" default:"0" doc:"Return entries after this sequence number"`
	Limit int    `query:"limit" required:"false" default:"100" doc:"Max results"`
}

type ListEntriesOutput struct {
	Body []EntryResponse
}

func registerEntries(api huma.API, svc *app.LedgerService) {
	huma.Register(api, huma.Operation{
		OperationID: "list-entries",
		Method:      http.MethodGet,
		Path:        "/api/v1/entries",
		Summary:     "Read the ledger log in sequence order",
		Tags:        []string{"Entries"},
	}, func(ctx context.Context, input *ListEntriesInput) (*ListEntriesOutput, error) {
		filter := domain.EntryFilter{
			LotID:    input.LotID,
			AfterSeq: input.After,
			Limit:    input.Limit,
		}
		if input.Kind != "" {
			k := domain.EntryKind(input.Kind)
			filter.Kind = &k
		}

		entries, err := svc.Entries(ctx, filter)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]EntryResponse, len(entries))
		for i, e := range entries {
			resp[i] = toEntryResponse(e)
		}
		return &ListEntriesOutput{Body: resp}, nil
	})
}
