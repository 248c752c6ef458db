package repository

import "errors"

var (
	ErrNotFound   = errors.New("record not found")
	ErrStaleState = errors.New("record not in expected state")
)
