// Package httpapi is the request surface: it decodes requests, calls the
// ledger engine or aggregation layer, and serializes results and domain
// errors. It performs no business validation of its own.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/Printendo/jose/internal/errors"
	"github.com/Printendo/jose/internal/ledger"
	"github.com/Printendo/jose/internal/logging"
	"github.com/Printendo/jose/internal/metrics"
	"github.com/Printendo/jose/internal/stats"
)

// Ledger is the mutating side of the API, implemented by ledger.Service.
type Ledger interface {
	CreateAccount(ctx context.Context, accountID int64, accountType ledger.AccountType) (int64, error)
	GetWallet(ctx context.Context, accountID int64) (*ledger.Wallet, error)
	Transfer(ctx context.Context, senderID, receiverID int64, amount decimal.Decimal) (*ledger.TransferResult, error)
	IncrementSteal(ctx context.Context, userID int64, counter ledger.StealCounter) (bool, error)
}

// Stats is the read-only side, implemented by stats.Service.
type Stats interface {
	SumsByType(ctx context.Context) (*stats.Sums, error)
	CompositeStats(ctx context.Context) (*stats.Report, error)
	Rank(ctx context.Context, walletID int64, guildID *int64) (*stats.Rank, error)
}

type handler struct {
	ledger Ledger
	stats  Stats
	log    *logging.Logger
}

// NewHandler builds the full route table. Collaborators are injected; the
// package keeps no process-wide state.
func NewHandler(l Ledger, st Stats, log *logging.Logger) http.Handler {
	h := &handler{ledger: l, stats: st, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/", h.index).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/wallets/{account_id:[0-9]+}", h.getWallet).Methods(http.MethodGet)
	api.HandleFunc("/wallets/{account_id:[0-9]+}", h.createAccount).Methods(http.MethodPost)
	api.HandleFunc("/wallets/{sender_id:[0-9]+}/transfer", h.transfer).Methods(http.MethodPost)
	api.HandleFunc("/wallets/{wallet_id:[0-9]+}/steal_use", h.stealUse).Methods(http.MethodPost)
	api.HandleFunc("/wallets/{wallet_id:[0-9]+}/steal_success", h.stealSuccess).Methods(http.MethodPost)
	api.HandleFunc("/wallets/{wallet_id:[0-9]+}/rank", h.rank).Methods(http.MethodGet)
	api.HandleFunc("/gdp", h.gdp).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.statsReport).Methods(http.MethodGet)

	return r
}

func (h *handler) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "oof")
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) getWallet(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "account_id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	wallet, err := h.ledger.GetWallet(r.Context(), accountID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (h *handler) createAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "account_id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	var payload struct {
		Type int `json:"type"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, errors.Input("invalid request body").WithCause(err))
		return
	}

	inserted, err := h.ledger.CreateAccount(r.Context(), accountID, ledger.AccountType(payload.Type))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"inserted": inserted})
}

func (h *handler) transfer(w http.ResponseWriter, r *http.Request) {
	senderID, err := pathID(r, "sender_id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	var payload struct {
		Receiver int64           `json:"receiver"`
		Amount   decimal.Decimal `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, errors.Input("invalid request body").WithCause(err))
		return
	}

	result, err := h.ledger.Transfer(r.Context(), senderID, payload.Receiver, payload.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) stealUse(w http.ResponseWriter, r *http.Request) {
	h.incrementSteal(w, r, ledger.StealUses)
}

func (h *handler) stealSuccess(w http.ResponseWriter, r *http.Request) {
	h.incrementSteal(w, r, ledger.StealSuccess)
}

func (h *handler) incrementSteal(w http.ResponseWriter, r *http.Request, counter ledger.StealCounter) {
	walletID, err := pathID(r, "wallet_id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	ok, err := h.ledger.IncrementSteal(r.Context(), walletID, counter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": ok})
}

func (h *handler) rank(w http.ResponseWriter, r *http.Request) {
	walletID, err := pathID(r, "wallet_id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	var guildID *int64
	if raw := r.URL.Query().Get("guild_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.writeError(w, errors.Input("guild_id must be an integer"))
			return
		}
		guildID = &id
	}

	rank, err := h.stats.Rank(r.Context(), walletID, guildID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rank)
}

func (h *handler) gdp(w http.ResponseWriter, r *http.Request) {
	sums, err := h.stats.SumsByType(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sums)
}

func (h *handler) statsReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.stats.CompositeStats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Input("%s must be an integer", name)
	}
	return id, nil
}

func decodeJSON(body io.ReadCloser, dst any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// errorEnvelope is the wire form of every domain error.
type errorEnvelope struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	status := errors.StatusOf(err)
	message := err.Error()

	// Unexpected failures must not leak internals.
	if errors.KindOf(err) == errors.KindInternal {
		h.log.WithError(err).Error("internal error")
		message = "internal server error"
	}

	writeJSON(w, status, errorEnvelope{Error: true, Message: message})
}
