package sdk

import (
	"errors"
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"

	"reputationkit/core"
	"reputationkit/leaderboard"
)

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string         `json:"status"`
	Checks map[string]any `json:"checks"`
}

// Mutation is the committed snapshot and the delta that produced it.
type Mutation struct {
	Snapshot core.Snapshot `json:"snapshot"`
	Delta    core.Delta    `json:"delta"`
}

// Leaderboard is one ranked page.
type Leaderboard struct {
	Metric  leaderboard.Metric  `json:"metric"`
	Entries []leaderboard.Entry `json:"entries"`
}

// Registration is the result of creating an account. ReferralError is set
// when the account was created but the referral code could not be applied.
type Registration struct {
	Snapshot      core.Snapshot `json:"snapshot"`
	ReferralError string        `json:"referral_error,omitempty"`
}

// APIError is a non-2xx response. It unwraps to the matching core sentinel,
// so callers can use errors.Is(err, core.ErrInsufficientBalance).
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("reputation api: %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case "invalid_amount":
		return core.ErrInvalidAmount
	case "insufficient_balance":
		return core.ErrInsufficientBalance
	case "unknown_metric":
		return core.ErrUnknownMetric
	case "not_found":
		return core.ErrUserNotFound
	case "conflict":
		return core.ErrConflict
	case "already_exists":
		return core.ErrUserExists
	case "self_referral":
		return core.ErrSelfReferral
	case "already_referred":
		return core.ErrAlreadyReferred
	case "unknown_code":
		return core.ErrUnknownCode
	case "invalid_action":
		return core.ErrSystemAction
	}
	return nil
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = "http_error"
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrEmptyUserID is returned when user id is empty.
var ErrEmptyUserID = errors.New("user id is required")
