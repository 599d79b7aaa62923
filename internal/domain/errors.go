package domain

import "errors"

var ErrRatesUnconfigured = errors.New("Rates not configured")
var ErrInvalidAmount = errors.New("Invalid amount")
var ErrInvalidValue = errors.New("Invalid value")
var ErrRecordNotFound = errors.New("Record not found")
var ErrDuplicateReference = errors.New("Duplicate reference")
