package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/daverbj/solana-llm-integration/service/chat"
	"github.com/daverbj/solana-llm-integration/service/config"
	"github.com/daverbj/solana-llm-integration/service/db"
	"github.com/daverbj/solana-llm-integration/service/intent"
	"github.com/daverbj/solana-llm-integration/service/solana"
	"github.com/daverbj/solana-llm-integration/service/temporal"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for a query or airdrop request
	maxQueryLength     = 4096
	defaultListLimit   = 50
	maxListLimit       = 500
)

// Airdrop sources recorded in the ledger and on published events.
const (
	sourceAPI      = "api"
	sourceChat     = "chat"
	sourceWorkflow = "workflow"
)

type airdropRequest struct {
	Address string   `json:"address"`
	Amount  *float64 `json:"amount,omitempty"` // SOL; defaults to AIRDROP_DEFAULT_SOL
}

type queryRequest struct {
	Query string `json:"query"`
}

// handleGetBalance returns a handler that reads the balance of an address.
// GET /api/v1/balance/{address}
func handleGetBalance(balances chat.BalanceReader, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(r, logger)

		addr, err := solana.ParseAddress(r.PathValue("address"))
		if err != nil {
			log.DebugContext(r.Context(), "invalid address", "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		reading, err := balances.GetBalance(r.Context(), addr)
		if err != nil {
			writeOperationError(w, r, log, "balance read failed", err)
			return
		}

		log.DebugContext(r.Context(), "balance read", "address", addr.String(), "lamports", reading.Lamports)
		writeJSON(w, reading, http.StatusOK)
	})
}

// handleRequestAirdrop returns a handler that credits devnet SOL and waits for
// the balance change.
// POST /api/v1/airdrop
func handleRequestAirdrop(airdrops chat.AirdropRequester, recorder *airdropRecorder, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(r, logger)

		var req airdropRequest
		if !decodeBody(w, r, log, &req) {
			return
		}

		addr, err := solana.ParseAddress(req.Address)
		if err != nil {
			log.DebugContext(r.Context(), "invalid address", "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		amount := cfg.AirdropDefaultSOL
		if req.Amount != nil {
			amount = *req.Amount
		}

		result, err := airdrops.RequestAirdrop(r.Context(), addr, amount)
		if err != nil {
			writeOperationError(w, r, log, "airdrop failed", err)
			return
		}

		recorder.record(r.Context(), result, sourceAPI)
		writeJSON(w, result, http.StatusOK)
	})
}

// handleResolveIntent returns a handler that turns a query into an Intent
// without running it.
// POST /api/v1/intent
func handleResolveIntent(resolver intent.Resolver, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(r, logger)

		query, ok := decodeQuery(w, r, log)
		if !ok {
			return
		}

		in, err := resolver.Extract(r.Context(), query)
		if err != nil {
			writeOperationError(w, r, log, "intent resolution failed", err)
			return
		}

		writeJSON(w, in, http.StatusOK)
	})
}

// handleChat returns a handler that resolves a query and runs the requested operation.
// POST /api/v1/chat
func handleChat(assistant *chat.Assistant, recorder *airdropRecorder, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(r, logger)

		query, ok := decodeQuery(w, r, log)
		if !ok {
			return
		}

		reply, err := assistant.Handle(r.Context(), query)
		if err != nil {
			writeOperationError(w, r, log, "chat failed", err)
			return
		}

		if reply.Airdrop != nil {
			recorder.record(r.Context(), reply.Airdrop, sourceChat)
		}

		log.InfoContext(r.Context(), "chat handled", "action", reply.Intent.Action, "status", reply.Status)
		writeJSON(w, reply, http.StatusOK)
	})
}

// handleListAirdrops returns a handler that lists recorded airdrops, newest first.
// GET /api/v1/airdrops?address={address}&limit={limit}&offset={offset}
func handleListAirdrops(ledger AirdropLedger, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(r, logger)
		q := r.URL.Query()

		address := q.Get("address")
		if address != "" {
			if _, err := solana.ParseAddress(address); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		limit, err := parseBoundedInt(q.Get("limit"), defaultListLimit, 1, maxListLimit)
		if err != nil {
			writeError(w, "invalid limit: "+err.Error(), http.StatusBadRequest)
			return
		}
		offset, err := parseBoundedInt(q.Get("offset"), 0, 0, 1<<30)
		if err != nil {
			writeError(w, "invalid offset: "+err.Error(), http.StatusBadRequest)
			return
		}

		airdrops, err := ledger.ListAirdropsByAddress(r.Context(), db.ListAirdropsParams{
			Address: address,
			Limit:   int32(limit),
			Offset:  int32(offset),
		})
		if err != nil {
			log.ErrorContext(r.Context(), "failed to list airdrops", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if airdrops == nil {
			airdrops = []*db.Airdrop{}
		}

		writeJSON(w, map[string]interface{}{
			"airdrops": airdrops,
			"count":    len(airdrops),
			"limit":    limit,
			"offset":   offset,
		}, http.StatusOK)
	})
}

// handleStartAirdropWorkflow returns a handler that starts a durable airdrop.
// POST /api/v1/airdrop-workflows
func handleStartAirdropWorkflow(scheduler temporal.AirdropScheduler, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(r, logger)

		var req airdropRequest
		if !decodeBody(w, r, log, &req) {
			return
		}

		addr, err := solana.ParseAddress(req.Address)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		amount := cfg.AirdropDefaultSOL
		if req.Amount != nil {
			amount = *req.Amount
		}
		if err := solana.ValidateAmount(amount, cfg.AirdropMaxSOL); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		id, err := scheduler.StartAirdrop(r.Context(), temporal.AirdropWorkflowInput{
			Address: addr.String(),
			Amount:  amount,
			Source:  sourceWorkflow,
			Config:  cfg.Airdrop(),
		})
		if err != nil {
			log.ErrorContext(r.Context(), "failed to start airdrop workflow", "address", addr.String(), "error", err)
			writeError(w, "failed to start airdrop workflow", http.StatusInternalServerError)
			return
		}

		log.InfoContext(r.Context(), "airdrop workflow started", "address", addr.String(), "workflow_id", id)
		writeJSON(w, map[string]string{
			"workflow_id": id,
			"status_url":  "/api/v1/airdrop-workflows/" + id,
		}, http.StatusAccepted)
	})
}

// handleGetAirdropWorkflow returns a handler that reports a durable airdrop's state.
// GET /api/v1/airdrop-workflows/{workflow_id}
func handleGetAirdropWorkflow(scheduler temporal.AirdropScheduler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(r, logger)

		id := r.PathValue("workflow_id")
		if id == "" || len(id) > 128 {
			writeError(w, "invalid workflow_id", http.StatusBadRequest)
			return
		}

		status, err := scheduler.GetAirdropStatus(r.Context(), id)
		if err != nil {
			if errors.Is(err, temporal.ErrWorkflowNotFound) {
				writeError(w, "workflow not found", http.StatusNotFound)
				return
			}
			log.ErrorContext(r.Context(), "failed to get airdrop workflow", "workflow_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, status, http.StatusOK)
	})
}

// decodeBody decodes a size-limited JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, log *slog.Logger, v interface{}) bool {
	// Limit request body size to prevent memory exhaustion
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		log.DebugContext(r.Context(), "failed to decode request", "error", err)
		// Check if error is due to body size limit
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
			return false
		}
		writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func decodeQuery(w http.ResponseWriter, r *http.Request, log *slog.Logger) (string, bool) {
	var req queryRequest
	if !decodeBody(w, r, log, &req) {
		return "", false
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeError(w, "query is required", http.StatusBadRequest)
		return "", false
	}
	if len(query) > maxQueryLength {
		writeError(w, "query too long: maximum length is 4096 characters", http.StatusBadRequest)
		return "", false
	}
	return query, true
}

// writeOperationError maps domain errors to HTTP statuses.
func writeOperationError(w http.ResponseWriter, r *http.Request, log *slog.Logger, msg string, err error) {
	switch {
	case errors.Is(err, solana.ErrInvalidAddress), errors.Is(err, solana.ErrInvalidAmount):
		log.DebugContext(r.Context(), msg, "error", err)
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, intent.ErrIntentParse):
		log.WarnContext(r.Context(), msg, "error", err)
		writeError(w, "could not understand the query: "+err.Error(), http.StatusBadGateway)
	case errors.Is(err, solana.ErrAirdrop), errors.Is(err, solana.ErrRPCExhausted):
		log.ErrorContext(r.Context(), msg, "error", err)
		writeError(w, err.Error(), http.StatusBadGateway)
	default:
		log.ErrorContext(r.Context(), msg, "error", err)
		writeError(w, "internal server error", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

func parseBoundedInt(raw string, def, lo, hi int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("must be an integer")
	}
	if n < lo || n > hi {
		return 0, errors.New("out of range")
	}
	return n, nil
}
