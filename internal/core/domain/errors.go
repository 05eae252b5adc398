package domain

import "errors"

var (
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrProductNotFound       = errors.New("product not found")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrExternalService       = errors.New("external service failure")
	ErrInternalInconsistency = errors.New("internal inconsistency")
)
