/*
handlers.go - HTTP API handlers for the credit reward engine

PURPOSE:
  Exposes the reward engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the catalog handles.

ENDPOINTS:
  Reward triggers:
    POST   /api/rewards/reactions      Reaction left on content
    POST   /api/rewards/referrals      Referral completed
    POST   /api/rewards/reports        Content report accepted
    POST   /api/rewards/content-votes  Content upvoted (settled later)
    POST   /api/rewards/answer-votes   Answer marked helpful (settled later)

  History:
    GET    /api/users/{id}/events      Reward event history for a user

  Admin:
    POST   /api/admin/settle/{type}    Trigger one settlement sweep
    GET    /api/admin/transfers        Recorded transfers (dev mode only)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed request body
  - 404: Unknown reward type
  - 409: Sweep already running for the group
  - 502: Settlement aborted mid-chunk (chunk and phase in details)
  - 500: Internal errors

  Not-qualified and duplicate triggers are deliberate 202s: the caller
  fired a valid notification, the engine just decided it pays nothing.

SECURITY NOTE:
  No authentication middleware. This service sits behind the community
  backend, which is the only intended caller.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/credit-engine/catalog"
	"github.com/warp/credit-engine/ledger"
	"github.com/warp/credit-engine/reward"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *reward.Engine
	Catalog *catalog.Catalog
	Store   reward.EventStore

	// Recorder is set in dev mode only; nil disables the transfers
	// endpoint.
	Recorder *ledger.Recorder

	Log *zap.Logger
}

// NewHandler creates a handler over the wired engine.
func NewHandler(engine *reward.Engine, cat *catalog.Catalog, store reward.EventStore, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Engine: engine, Catalog: cat, Store: store, Log: log}
}

// =============================================================================
// REWARD TRIGGER HANDLERS
// =============================================================================

// TriggerReaction applies a reactionReceived occurrence.
func (h *Handler) TriggerReaction(w http.ResponseWriter, r *http.Request) {
	var req ReactionRequest
	if !decode(w, r, &req) {
		return
	}
	h.applied(w, r, h.Catalog.ReactionReceived.Apply(r.Context(), catalog.ReactionInput{
		ReactorID: req.ReactorID,
		ContentID: req.ContentID,
		OwnerID:   req.OwnerID,
	}, clientIP(r)))
}

// TriggerReferral applies a referralCompleted occurrence.
func (h *Handler) TriggerReferral(w http.ResponseWriter, r *http.Request) {
	var req ReferralRequest
	if !decode(w, r, &req) {
		return
	}
	h.applied(w, r, h.Catalog.ReferralCompleted.Apply(r.Context(), catalog.ReferralInput{
		InviterID: req.InviterID,
		InviteeID: req.InviteeID,
	}, clientIP(r)))
}

// TriggerReport applies a reportAccepted occurrence.
func (h *Handler) TriggerReport(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	if !decode(w, r, &req) {
		return
	}
	h.applied(w, r, h.Catalog.ReportAccepted.Apply(r.Context(), catalog.ReportInput{
		ReporterID:  req.ReporterID,
		ModeratorID: req.ModeratorID,
		ContentID:   req.ContentID,
	}, clientIP(r)))
}

// TriggerContentVote records a goodContent occurrence for settlement.
func (h *Handler) TriggerContentVote(w http.ResponseWriter, r *http.Request) {
	var req ContentVoteRequest
	if !decode(w, r, &req) {
		return
	}
	h.applied(w, r, h.Catalog.GoodContent.Apply(r.Context(), catalog.ContentInput{
		VoterID:   req.VoterID,
		AuthorID:  req.AuthorID,
		ContentID: req.ContentID,
		Kind:      req.Kind,
	}, clientIP(r)))
}

// TriggerAnswerVote records a helpfulAnswer occurrence for settlement.
func (h *Handler) TriggerAnswerVote(w http.ResponseWriter, r *http.Request) {
	var req AnswerVoteRequest
	if !decode(w, r, &req) {
		return
	}
	h.applied(w, r, h.Catalog.HelpfulAnswer.Apply(r.Context(), catalog.AnswerInput{
		VoterID:    req.VoterID,
		AnswererID: req.AnswererID,
		AnswerID:   req.AnswerID,
	}, clientIP(r)))
}

// applied finishes a trigger request. The engine treats not-qualified
// and duplicate occurrences as successful no-ops, so every nil error is
// a 202: the occurrence was accepted, whatever the engine decided.
func (h *Handler) applied(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		h.Log.Error("reward trigger failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to apply reward", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// =============================================================================
// HISTORY HANDLERS
// =============================================================================

// ListUserEvents returns the latest version of every reward event for a
// user, in arrival order.
func (h *Handler) ListUserEvents(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	events, err := h.Store.Latest(r.Context(), reward.Filter{
		Types:    h.Catalog.Types(),
		ToUserID: userID,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events", err)
		return
	}

	dtos := make([]EventDTO, len(events))
	for i, ev := range events {
		dtos[i] = EventDTO{
			Type:        ev.Type,
			ToUserID:    ev.ToUserID,
			ByUserID:    ev.ByUserID,
			ForID:       ev.ForID,
			AwardAmount: ev.AwardAmount,
			Status:      string(ev.Status),
			Time:        ev.Time.Format(time.RFC3339),
			Version:     ev.Version,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerSettle runs one settlement sweep for a processable group.
func (h *Handler) TriggerSettle(w http.ResponseWriter, r *http.Request) {
	typeTag := chi.URLParam(r, "type")

	err := h.Engine.Settle(r.Context(), typeTag, time.Now())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, SettleResponse{Type: typeTag, Settled: true})
	case errors.Is(err, reward.ErrUnknownType):
		writeError(w, http.StatusNotFound, fmt.Sprintf("No processable reward %q", typeTag), nil)
	case errors.Is(err, reward.ErrSweepInProgress):
		writeError(w, http.StatusConflict, "Sweep already running", nil)
	default:
		var chunkErr *reward.ChunkError
		if errors.As(err, &chunkErr) {
			h.Log.Error("manual settlement aborted",
				zap.String("type", typeTag),
				zap.Int("chunk", chunkErr.Chunk),
				zap.String("phase", string(chunkErr.Phase)),
				zap.Error(err))
			writeError(w, http.StatusBadGateway, "Settlement aborted mid-sweep", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Settlement failed", err)
	}
}

// ListTransfers exposes the dev-mode transfer recorder.
func (h *Handler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	if h.Recorder == nil {
		writeError(w, http.StatusNotFound, "Transfer recording is only available in dev mode", nil)
		return
	}

	transfers := h.Recorder.Transfers()
	dtos := make([]TransferDTO, len(transfers))
	for i, tr := range transfers {
		dtos[i] = TransferDTO{
			ID:          string(tr.ID),
			ToAccount:   tr.ToAccount,
			Amount:      tr.Amount,
			Description: tr.Description,
			RewardType:  tr.Details.RewardType,
			At:          tr.At.Format(time.RFC3339),
			Refunded:    tr.Refunded,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
