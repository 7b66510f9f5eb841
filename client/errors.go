package client

import (
	"errors"
	"fmt"
)

// ErrConfig is wrapped by every construction error.
var ErrConfig = errors.New("invalid client configuration")

var (
	ErrMissingURL       = fmt.Errorf("%w: url is empty", ErrConfig)
	ErrMissingAPIKey    = fmt.Errorf("%w: api key is empty", ErrConfig)
	ErrMissingAgentName = fmt.Errorf("%w: agent name is empty", ErrConfig)
)

// ErrInvalidMetric is returned by AddMetric for records that cannot be sent.
var ErrInvalidMetric = errors.New("invalid metric")
