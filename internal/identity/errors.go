package identity

import "errors"

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInvalidInitData  = errors.New("invalid init data")
	ErrInitDataExpired  = errors.New("init data expired")
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token expired")
)
