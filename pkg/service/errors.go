package service

import "errors"

// ConfigurationError is a construction-time problem with the supplied
// options; it is returned synchronously from the constructors, never later.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "esri: invalid configuration: " + e.Reason
}

// ErrRemoved is returned by task calls on an adapter after Remove. A removed
// adapter is terminal; re-adding the service requires a new instance.
var ErrRemoved = errors.New("esri: adapter removed")
