package models

import "errors"

// ErrNotFound is returned when a decision, run or task record does not exist
var ErrNotFound = errors.New("not found")
