package geoip

import "errors"

var (
	// ErrUnavailable is returned when the database cannot be opened.
	ErrUnavailable = errors.New("geoip.unavailable")
	// ErrInvalidAddress is returned for strings that are not IP addresses.
	ErrInvalidAddress = errors.New("geoip.invalid_address")
)
