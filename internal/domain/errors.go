package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrNoMarketData     = errors.New("no market data")
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
	ErrInvalidConfig    = errors.New("invalid configuration")
)
