/*
dto.go - Request and response data structures

PURPOSE:
  Defines the JSON shapes exchanged with API clients, kept separate from
  the domain types so the wire format can evolve independently.

CONVENTIONS:
  - JSON uses snake_case field names
  - Timestamps are RFC3339
  - Amounts are integer credits (the smallest unit; no fractions)

SEE ALSO:
  - handlers.go: Where these DTOs are produced and consumed
*/
package api

// =============================================================================
// REWARD TRIGGER REQUESTS
// =============================================================================

// ReactionRequest reports a reaction left on a piece of content.
type ReactionRequest struct {
	ReactorID string `json:"reactor_id"`
	ContentID string `json:"content_id"`
	OwnerID   string `json:"owner_id,omitempty"`
}

// ReferralRequest reports a completed referral.
type ReferralRequest struct {
	InviterID string `json:"inviter_id"`
	InviteeID string `json:"invitee_id"`
}

// ReportRequest reports a content report a moderator accepted.
type ReportRequest struct {
	ReporterID  string `json:"reporter_id"`
	ModeratorID string `json:"moderator_id,omitempty"`
	ContentID   string `json:"content_id"`
}

// ContentVoteRequest reports an upvote on a piece of content.
type ContentVoteRequest struct {
	VoterID   string `json:"voter_id"`
	AuthorID  string `json:"author_id"`
	ContentID string `json:"content_id"`
	Kind      string `json:"kind,omitempty"`
}

// AnswerVoteRequest reports an answer marked helpful.
type AnswerVoteRequest struct {
	VoterID    string `json:"voter_id"`
	AnswererID string `json:"answerer_id"`
	AnswerID   string `json:"answer_id"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// EventDTO is one reward event in a user's history.
type EventDTO struct {
	Type        string `json:"type"`
	ToUserID    string `json:"to_user_id"`
	ByUserID    string `json:"by_user_id,omitempty"`
	ForID       string `json:"for_id,omitempty"`
	AwardAmount int64  `json:"award_amount"`
	Status      string `json:"status"`
	Time        string `json:"time"`
	Version     int    `json:"version"`
}

// SettleResponse acknowledges a manual settlement sweep.
type SettleResponse struct {
	Type    string `json:"type"`
	Settled bool   `json:"settled"`
}

// TransferDTO is one recorded balance transfer (dev mode only).
type TransferDTO struct {
	ID          string `json:"id"`
	ToAccount   string `json:"to_account"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	RewardType  string `json:"reward_type,omitempty"`
	At          string `json:"at"`
	Refunded    bool   `json:"refunded,omitempty"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
