package cachecore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotImplemented is returned by operations a backend cannot serve.
	ErrNotImplemented = errors.New("nscache: operation not implemented")
	// ErrInvariant marks store results that are structurally impossible,
	// such as two rows for one primary key.
	ErrInvariant = errors.New("nscache: internal consistency violation")
	// ErrMissingParameter marks a required configuration value that was not supplied.
	ErrMissingParameter = errors.New("nscache: missing parameter")
	// ErrInvalidParameter marks a configuration value that failed validation.
	ErrInvalidParameter = errors.New("nscache: invalid parameter")
)

// ConfigError reports a construction-time configuration problem. It is
// never retried.
type ConfigError struct {
	Param string
	Msg   string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Param, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// MissingParam builds a ConfigError for an absent required parameter.
func MissingParam(param string) error {
	return &ConfigError{Param: param, Msg: param + " is required", Err: ErrMissingParameter}
}

// InvalidParam builds a ConfigError for a parameter that failed validation.
func InvalidParam(param, msg string) error {
	return &ConfigError{Param: param, Msg: msg, Err: ErrInvalidParameter}
}

// InvariantError carries the operation and observed value of a consistency
// violation.
type InvariantError struct {
	Op     string
	Key    string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("nscache: %s %q: %s", e.Op, e.Key, e.Detail)
}

func (e *InvariantError) Is(target error) bool { return target == ErrInvariant }
