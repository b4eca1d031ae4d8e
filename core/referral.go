package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ReferralCodeLength is the length of generated referral codes.
const ReferralCodeLength = 8

// ReferrerLookup resolves a referral code to the account that owns it.
type ReferrerLookup interface {
	FindByReferralCode(ctx context.Context, code string) (UserID, bool, error)
}

// ReferrerLookupFunc adapts a function to ReferrerLookup.
type ReferrerLookupFunc func(ctx context.Context, code string) (UserID, bool, error)

func (f ReferrerLookupFunc) FindByReferralCode(ctx context.Context, code string) (UserID, bool, error) {
	return f(ctx, code)
}

// NewReferralCode generates a fresh upper-case referral code.
func NewReferralCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:ReferralCodeLength])
}

// NormalizeReferralCode trims and upper-cases a code as typed by a user.
func NormalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ReferralResult is a successful redemption. NewUserDelta binds ReferredBy on
// the new account; the referrer is credited separately with a
// referral_redeemed activity.
type ReferralResult struct {
	ReferrerID   UserID `json:"referrer_id"`
	Bonus        int64  `json:"bonus"`
	NewUserDelta Delta  `json:"-"`
}

// ReferralProcessor validates referral redemptions.
type ReferralProcessor struct {
	points PointsCalculator
}

func NewReferralProcessor(points PointsCalculator) ReferralProcessor {
	return ReferralProcessor{points: points}
}

// ProcessReferral checks that newUser may redeem code. ErrUnknownCode must
// not abort registration; only the bonus is skipped.
func (p ReferralProcessor) ProcessReferral(ctx context.Context, newUser Snapshot, lookup ReferrerLookup, code string) (ReferralResult, error) {
	code = NormalizeReferralCode(code)
	if code == "" {
		return ReferralResult{}, ErrUnknownCode
	}
	if newUser.ReferralCode != "" && code == NormalizeReferralCode(newUser.ReferralCode) {
		return ReferralResult{}, ErrSelfReferral
	}
	if newUser.ReferredBy != nil {
		return ReferralResult{}, fmt.Errorf("%w by %s", ErrAlreadyReferred, *newUser.ReferredBy)
	}
	owner, ok, err := lookup.FindByReferralCode(ctx, code)
	if err != nil {
		return ReferralResult{}, fmt.Errorf("lookup referral code: %w", err)
	}
	if !ok {
		return ReferralResult{}, fmt.Errorf("%w: %s", ErrUnknownCode, code)
	}
	if owner == newUser.UserID {
		return ReferralResult{}, ErrSelfReferral
	}
	bonus, err := p.points.FlatAward(ActionReferralRedeemed)
	if err != nil {
		bonus = 0
	}
	d := NoopDelta(newUser)
	ref := owner
	d.ReferredBy = &ref
	d.Reason = "referral bound"
	return ReferralResult{ReferrerID: owner, Bonus: bonus, NewUserDelta: d}, nil
}
