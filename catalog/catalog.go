/*
Package catalog declares the concrete reward types the service pays out.

PURPOSE:
  The reward package is deliberately domain-agnostic; this package is the
  domain. Each definition here names a community action worth credits,
  derives its semantic identity (who earns, who triggered, for what), and
  sets the amounts and caps.

AVAILABLE REWARDS:
  reactionReceived (on-demand):
    - 1 credit when someone reacts to your content
    - Capped at 25 credits per user

  referralCompleted (on-demand):
    - 100 credits when an invited user activates their account
    - Capped at 1000 credits per user

  reportAccepted (on-demand):
    - 10 credits when a moderator accepts your content report
    - Capped at 100 credits per user

  goodContent (processable, refined by kind):
    - 5 credits per upvoted piece of content, settled in batches
    - Sub-types goodContent:image and goodContent:article share one budget
    - Capped at 10 credits/day and 100 credits/month per author
    - Stale content (>30 days) and transferred content dropped at sweep time

  helpfulAnswer (processable):
    - 3 credits per answer marked helpful, settled in batches
    - Capped at 30 credits/week per author and 3 credits/day per voter pair

TWO MODES:
  On-demand rewards pay out the moment the action happens. Processable
  rewards only record a pending event; a scheduled sweep decides them
  later under their cap rules.

EXAMPLE:
  cat, err := catalog.New(engine, elig, nil)
  if err != nil { ... }
  err = cat.GoodContent.Apply(ctx, catalog.ContentInput{...}, ip)

SEE ALSO:
  - reward/registry.go: Definition structs and registration
  - eligibility: The relational lookups the key functions consult
*/
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/credit-engine/reward"
)

// contentRecencyLimit is how old a piece of content may be and still earn
// its author goodContent credits at sweep time.
const contentRecencyLimit = 30 * 24 * time.Hour

// =============================================================================
// ELIGIBILITY - Read-only relational lookups
// =============================================================================

// Eligibility answers the relational questions the key functions and
// preprocess hooks need. Implementations must be read-only; the reward
// engine never writes through this interface.
type Eligibility interface {
	// ContentOwner returns the user id that currently owns the content.
	ContentOwner(ctx context.Context, contentID string) (string, error)

	// ContentCreatedAt returns when the content was created.
	ContentCreatedAt(ctx context.Context, contentID string) (time.Time, error)

	// ReferralActivated reports whether the invited user completed
	// activation.
	ReferralActivated(ctx context.Context, inviteeID string) (bool, error)
}

// =============================================================================
// INPUTS - Typed payloads per reward
// =============================================================================

// ReactionInput describes one reaction left on a piece of content.
// OwnerID may be empty; the key function then resolves the owner itself.
type ReactionInput struct {
	ReactorID string
	ContentID string
	OwnerID   string
}

// ReferralInput describes one completed referral.
type ReferralInput struct {
	InviterID string
	InviteeID string
}

// ReportInput describes one content report a moderator accepted.
type ReportInput struct {
	ReporterID  string
	ModeratorID string
	ContentID   string
}

// ContentInput describes one upvote on a piece of content. Kind refines
// the reward type ("image", "article", or empty for plain posts).
type ContentInput struct {
	VoterID   string
	AuthorID  string
	ContentID string
	Kind      string
}

// AnswerInput describes one answer marked helpful.
type AnswerInput struct {
	VoterID    string
	AnswererID string
	AnswerID   string
}

// =============================================================================
// CATALOG - Registered handles
// =============================================================================

// Catalog holds the typed handles for every registered reward.
type Catalog struct {
	ReactionReceived  *reward.OnDemandHandle[ReactionInput]
	ReferralCompleted *reward.OnDemandHandle[ReferralInput]
	ReportAccepted    *reward.OnDemandHandle[ReportInput]
	GoodContent       *reward.ProcessableHandle[ContentInput]
	HelpfulAnswer     *reward.ProcessableHandle[AnswerInput]
}

// New registers the full catalog against the engine. now defaults to
// time.Now; tests pin it.
func New(e *reward.Engine, elig Eligibility, now func() time.Time) (*Catalog, error) {
	if elig == nil {
		return nil, fmt.Errorf("catalog: eligibility source required")
	}
	if now == nil {
		now = time.Now
	}

	c := &Catalog{}
	var err error

	c.ReactionReceived, err = reward.RegisterOnDemand(e, reward.OnDemand[ReactionInput]{
		Type:        "reactionReceived",
		Description: "Reaction received on your content",
		BaseAmount:  1,
		Cap:         25,
		Key:         reactionKey(elig),
	})
	if err != nil {
		return nil, err
	}

	c.ReferralCompleted, err = reward.RegisterOnDemand(e, reward.OnDemand[ReferralInput]{
		Type:        "referralCompleted",
		Description: "Invited user activated their account",
		BaseAmount:  100,
		Cap:         1000,
		Key:         referralKey(elig),
	})
	if err != nil {
		return nil, err
	}

	c.ReportAccepted, err = reward.RegisterOnDemand(e, reward.OnDemand[ReportInput]{
		Type:        "reportAccepted",
		Description: "Content report accepted",
		BaseAmount:  10,
		Cap:         100,
		Key:         reportKey,
	})
	if err != nil {
		return nil, err
	}

	c.GoodContent, err = reward.RegisterProcessable(e, reward.Processable[ContentInput]{
		Type:         "goodContent",
		Description:  "Your content was upvoted",
		BaseAmount:   5,
		IncludeTypes: []string{"goodContent:image", "goodContent:article"},
		Caps: []reward.CapRule{
			{KeyParts: []reward.KeyPart{reward.PartToUser}, Amount: 10, Interval: reward.IntervalDay},
			{KeyParts: []reward.KeyPart{reward.PartToUser}, Amount: 100, Interval: reward.IntervalMonth},
		},
		Key:        goodContentKey,
		Preprocess: contentPreprocess(elig, now),
	})
	if err != nil {
		return nil, err
	}

	c.HelpfulAnswer, err = reward.RegisterProcessable(e, reward.Processable[AnswerInput]{
		Type:        "helpfulAnswer",
		Description: "Your answer was marked helpful",
		BaseAmount:  3,
		Caps: []reward.CapRule{
			{KeyParts: []reward.KeyPart{reward.PartToUser}, Amount: 30, Interval: reward.IntervalWeek},
			{KeyParts: []reward.KeyPart{reward.PartToUser, reward.PartByUser}, Amount: 3, Interval: reward.IntervalDay},
		},
		Key: helpfulAnswerKey,
	})
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Types returns every type tag the catalog can write events under,
// include types included. Event listings filter by this set.
func (c *Catalog) Types() []string {
	types := []string{
		c.ReactionReceived.Type(),
		c.ReferralCompleted.Type(),
		c.ReportAccepted.Type(),
	}
	types = append(types, c.GoodContent.Types()...)
	types = append(types, c.HelpfulAnswer.Types()...)
	return types
}

// =============================================================================
// KEY FUNCTIONS
// =============================================================================

// reactionKey resolves the content owner when the caller did not supply
// one. Reacting to your own content earns nothing.
func reactionKey(elig Eligibility) reward.KeyFunc[ReactionInput] {
	return func(ctx context.Context, in ReactionInput) (reward.EventKey, error) {
		owner := in.OwnerID
		if owner == "" {
			var err error
			owner, err = elig.ContentOwner(ctx, in.ContentID)
			if err != nil {
				return reward.EventKey{}, fmt.Errorf("resolve owner of %s: %w", in.ContentID, err)
			}
		}
		if owner == in.ReactorID {
			return reward.EventKey{}, reward.ErrNotQualified
		}
		return reward.EventKey{
			Type:     "reactionReceived",
			ToUserID: owner,
			ByUserID: in.ReactorID,
			ForID:    in.ContentID,
		}, nil
	}
}

// referralKey rejects self-referrals and referrals whose invitee never
// activated.
func referralKey(elig Eligibility) reward.KeyFunc[ReferralInput] {
	return func(ctx context.Context, in ReferralInput) (reward.EventKey, error) {
		if in.InviterID == in.InviteeID {
			return reward.EventKey{}, reward.ErrNotQualified
		}
		activated, err := elig.ReferralActivated(ctx, in.InviteeID)
		if err != nil {
			return reward.EventKey{}, fmt.Errorf("check activation of %s: %w", in.InviteeID, err)
		}
		if !activated {
			return reward.EventKey{}, reward.ErrNotQualified
		}
		return reward.EventKey{
			Type:     "referralCompleted",
			ToUserID: in.InviterID,
			ByUserID: in.InviteeID,
			ForID:    in.InviteeID,
		}, nil
	}
}

func reportKey(_ context.Context, in ReportInput) (reward.EventKey, error) {
	if in.ReporterID == "" || in.ContentID == "" {
		return reward.EventKey{}, reward.ErrNotQualified
	}
	return reward.EventKey{
		Type:     "reportAccepted",
		ToUserID: in.ReporterID,
		ByUserID: in.ModeratorID,
		ForID:    in.ContentID,
	}, nil
}

// goodContentKey refines the type by content kind so images and articles
// can be listed separately while sharing the goodContent cap budget.
func goodContentKey(_ context.Context, in ContentInput) (reward.EventKey, error) {
	if in.VoterID == in.AuthorID {
		return reward.EventKey{}, reward.ErrNotQualified
	}
	tag := "goodContent"
	switch in.Kind {
	case "image", "article":
		tag = tag + ":" + in.Kind
	}
	return reward.EventKey{
		Type:     tag,
		ToUserID: in.AuthorID,
		ByUserID: in.VoterID,
		ForID:    in.ContentID,
	}, nil
}

func helpfulAnswerKey(_ context.Context, in AnswerInput) (reward.EventKey, error) {
	if in.VoterID == in.AnswererID {
		return reward.EventKey{}, reward.ErrNotQualified
	}
	return reward.EventKey{
		Type:     "helpfulAnswer",
		ToUserID: in.AnswererID,
		ByUserID: in.VoterID,
		ForID:    in.AnswerID,
	}, nil
}

// =============================================================================
// PREPROCESS
// =============================================================================

// contentPreprocess disqualifies pending goodContent events whose content
// aged past the recency limit or changed owner since the vote.
func contentPreprocess(elig Eligibility, now func() time.Time) reward.PreprocessFunc {
	return func(ctx context.Context, events []*reward.RewardEvent) error {
		cutoff := now().Add(-contentRecencyLimit)
		for _, ev := range events {
			createdAt, err := elig.ContentCreatedAt(ctx, ev.ForID)
			if err != nil {
				return fmt.Errorf("created-at of %s: %w", ev.ForID, err)
			}
			if createdAt.Before(cutoff) {
				ev.Status = reward.StatusUnqualified
				continue
			}
			owner, err := elig.ContentOwner(ctx, ev.ForID)
			if err != nil {
				return fmt.Errorf("owner of %s: %w", ev.ForID, err)
			}
			if owner != ev.ToUserID {
				ev.Status = reward.StatusUnqualified
			}
		}
		return nil
	}
}
