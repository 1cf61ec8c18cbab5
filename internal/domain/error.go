package domain

import "errors"

var (
	ErrNoJobID      = errors.New("no job id in submit response")
	ErrJobNotFound  = errors.New("job not found")
	ErrUnauthorized = errors.New("missing or invalid bearer token")
)
