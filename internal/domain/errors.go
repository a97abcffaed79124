package domain

import "errors"

var (
	ErrCardNotFound     = errors.New("card not found")
	ErrDeckNotFound     = errors.New("deck not found")
	ErrDeckExists       = errors.New("deck already exists")
	ErrStaleReviewState = errors.New("review state was modified concurrently")
)
