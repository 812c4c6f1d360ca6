package document

import "errors"

var (
	ErrNotFound     = errors.New("document: not found")
	ErrInvalidInput = errors.New("document: invalid input")
	ErrConflict     = errors.New("document: conflicting concurrent change")
)
