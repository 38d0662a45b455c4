package referral

import "errors"

var (
	ErrInvalidCode     = errors.New("invalid referral code")
	ErrSelfReferral    = errors.New("cannot use your own referral code")
	ErrAlreadyRedeemed = errors.New("referral code already used")
	ErrUnknownUser     = errors.New("user profile not found")
	ErrCodeExhausted   = errors.New("could not allocate a unique referral code")
)
