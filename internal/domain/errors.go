package domain

import "errors"

// Sentinel errors. Callers wrap them with fmt.Errorf("...: %w", err) and the
// HTTP boundary maps them to status codes with errors.Is.
var (
	// ErrInvalidInput is returned for user-correctable request problems
	ErrInvalidInput = errors.New("invalid input")

	// ErrDataUnavailable is returned when the fetched prices cannot be used
	ErrDataUnavailable = errors.New("price data unavailable")

	// ErrEmptyResult is returned when the provider returned no rows for any symbol
	ErrEmptyResult = errors.New("empty result from market data provider")

	// ErrMalformedData is returned when the provider payload cannot be decoded
	ErrMalformedData = errors.New("malformed market data")

	// ErrUpstream is returned for network or provider-side failures
	ErrUpstream = errors.New("market data provider failure")

	// ErrUpstreamTimeout is returned when the fetch exceeded its deadline
	ErrUpstreamTimeout = errors.New("market data provider timed out")

	// ErrOptimization is returned when the return data is degenerate for clustering
	ErrOptimization = errors.New("optimization failed")
)
