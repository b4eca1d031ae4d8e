package core

import "time"

// ActionType classifies an activity event.
type ActionType string

const (
	ActionReviewCreated    ActionType = "review_created"
	ActionReviewDeleted    ActionType = "review_deleted"
	ActionReviewVoted      ActionType = "review_voted"
	ActionMovieRated       ActionType = "movie_rated"
	ActionWatchlistAdded   ActionType = "watchlist_added"
	ActionFavoriteAdded    ActionType = "favorite_added"
	ActionReplyPosted      ActionType = "reply_posted"
	ActionWatchPartyJoined ActionType = "watch_party_joined"
	ActionLogin            ActionType = "login"
	ActionReferralRedeemed ActionType = "referral_redeemed"
	ActionWelcomeBonus     ActionType = "welcome_bonus"
)

// IsUserActivity reports whether the action is performed by the user
// themselves. System-originated awards and votes cast by other users do
// not advance the streak.
func (a ActionType) IsUserActivity() bool {
	switch a {
	case ActionReferralRedeemed, ActionWelcomeBonus, ActionReviewVoted:
		return false
	}
	return true
}

// Activity is a discrete, classified user action. Only the fields relevant
// to Action are read.
type Activity struct {
	Action ActionType `json:"action"`
	At     time.Time  `json:"at,omitempty"`

	// review_created
	MediaID      string `json:"media_id,omitempty"`
	ReviewRank   int    `json:"review_rank,omitempty"`
	ReviewLength int    `json:"review_length,omitempty"`

	// review_voted: votes added (or removed when negative) on one of the
	// user's reviews. review_deleted: the likes/dislikes the deleted review held.
	LikesDelta    int64 `json:"likes_delta,omitempty"`
	DislikesDelta int64 `json:"dislikes_delta,omitempty"`

	// referral_redeemed
	ReferredUser UserID `json:"referred_user,omitempty"`

	Reason string `json:"reason,omitempty"`
}
