package commands

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/mintward/custody/app"
	"github.com/mintward/custody/coin"
	"github.com/mintward/custody/errors"
	"github.com/mintward/custody/x/signers"
)

// registerHandlers mounts the admin API. This is a thin JSON shim over
// the service, every rule lives in the engine.
func registerHandlers(mux *http.ServeMux, svc *app.Service) {
	h := &handlers{svc: svc}
	mux.HandleFunc("/operations", h.operations)
	mux.HandleFunc("/operations/", h.operation)
	mux.HandleFunc("/collateral/deposits", h.deposit)
	mux.HandleFunc("/collateral/withdrawals", h.withdrawal)
	mux.HandleFunc("/collateral/balance", h.balance)
}

type handlers struct {
	svc *app.Service
}

type operationRequest struct {
	Kind        string    `json:"kind"`
	Amount      coin.Coin `json:"amount"`
	Destination string    `json:"destination,omitempty"`
	Source      string    `json:"source,omitempty"`
	Reference   string    `json:"reference"`
}

// operations handles creation on POST and listing on GET.
func (h *handlers) operations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if r.URL.Query().Get("status") == "pending" {
			pending, err := h.svc.ListPending()
			respond(w, pending, err)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		recent, err := h.svc.ListRecent(limit)
		respond(w, recent, err)
	case http.MethodPost:
		var req operationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond(w, nil, errors.Wrap(errors.ErrInput, err.Error()))
			return
		}
		switch req.Kind {
		case "mint":
			snap, err := h.svc.RequestMint(r.Context(), req.Amount, req.Destination, req.Reference)
			respond(w, snap, err)
		case "burn":
			snap, err := h.svc.RequestBurn(r.Context(), req.Amount, req.Source, req.Reference)
			respond(w, snap, err)
		default:
			respond(w, nil, errors.Wrapf(errors.ErrInput, "kind %q", req.Kind))
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// operation routes /operations/{id} and its sub-resources.
func (h *handlers) operation(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/operations/")
	parts := strings.SplitN(rest, "/", 2)
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		respond(w, nil, errors.Wrapf(errors.ErrInput, "operation id %q", parts[0]))
		return
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		snap, err := h.svc.GetOperation(id)
		respond(w, snap, err)
	case action == "audit" && r.Method == http.MethodGet:
		events, err := h.svc.AuditTrail(id)
		respond(w, events, err)
	case action == "approve" && r.Method == http.MethodPost:
		var req struct {
			Signer string `json:"signer"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond(w, nil, errors.Wrap(errors.ErrInput, err.Error()))
			return
		}
		snap, err := h.svc.Approve(r.Context(), id, signers.MemberID(req.Signer))
		respond(w, snap, err)
	case action == "reject" && r.Method == http.MethodPost:
		var req struct {
			Actor  string `json:"actor"`
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond(w, nil, errors.Wrap(errors.ErrInput, err.Error()))
			return
		}
		snap, err := h.svc.Reject(id, req.Actor, req.Reason)
		respond(w, snap, err)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type collateralRequest struct {
	Amount        coin.Coin `json:"amount"`
	Reference     string    `json:"reference"`
	BankReference string    `json:"bank_reference,omitempty"`
}

func (h *handlers) deposit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req collateralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, nil, errors.Wrap(errors.ErrInput, err.Error()))
		return
	}
	entry, err := h.svc.RecordDeposit(req.Amount, req.Reference, req.BankReference)
	respond(w, entry, err)
}

func (h *handlers) withdrawal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req collateralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, nil, errors.Wrap(errors.ErrInput, err.Error()))
		return
	}
	entry, err := h.svc.RecordWithdrawal(req.Amount, req.Reference, req.BankReference)
	respond(w, entry, err)
}

func (h *handlers) balance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	balance, err := h.svc.CollateralBalance()
	if err != nil {
		respond(w, nil, err)
		return
	}
	issued, err := h.svc.IssuedSupply()
	if err != nil {
		respond(w, nil, err)
		return
	}
	respond(w, map[string]coin.Coin{
		"balance": balance,
		"issued":  issued,
	}, nil)
}

func respond(w http.ResponseWriter, payload interface{}, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(statusCode(err))
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func statusCode(err error) int {
	switch {
	case errors.ErrNotFound.Is(err):
		return http.StatusNotFound
	case errors.ErrUnauthorized.Is(err):
		return http.StatusForbidden
	case errors.ErrDuplicate.Is(err), errors.ErrState.Is(err),
		errors.ErrImmutable.Is(err), errors.ErrExpired.Is(err),
		errors.ErrInvariant.Is(err):
		return http.StatusConflict
	case errors.ErrInput.Is(err), errors.ErrEmpty.Is(err),
		errors.ErrAmount.Is(err), errors.ErrCurrency.Is(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
