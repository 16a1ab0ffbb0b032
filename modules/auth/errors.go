package auth

import "errors"

var (
	ErrInvalidCredentials      = errors.New("auth: invalid credentials")
	ErrTokenExpired            = errors.New("auth: token has expired")
	ErrTokenInvalid            = errors.New("auth: token is invalid")
	ErrPasswordTooWeak         = errors.New("auth: password does not meet requirements")
	ErrAPIKeyInvalid           = errors.New("auth: API key is invalid")
	ErrAPIKeyExpired           = errors.New("auth: API key has expired")
	ErrAPIKeyExists            = errors.New("auth: API key already exists")
	ErrNoCredentials           = errors.New("auth: no credentials in request")
	ErrUnexpectedSigningMethod = errors.New("auth: unexpected signing method")
)
