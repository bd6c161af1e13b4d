package core

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

const (
	PlugQueryParam = "plug"
	CommandTopic   = "smart/plug/command"
)

var (
	ErrMissingPlugId = errors.New("missing plug parameter")
	ErrInvalidPlugId = errors.New("invalid plug parameter")
)

// PlugId identifies the single plug a panel session controls. It is fixed
// for the lifetime of the session.
type PlugId int

// ParsePlugId reads the plug parameter of a panel page query.
func ParsePlugId(query url.Values) (PlugId, error) {
	raw := query.Get(PlugQueryParam)
	if raw == "" {
		return 0, ErrMissingPlugId
	}

	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %v", ErrInvalidPlugId, raw, err)
	}
	if id < 0 {
		return 0, fmt.Errorf("%w %q: must not be negative", ErrInvalidPlugId, raw)
	}

	return PlugId(id), nil
}

// TelemetryTopic is the topic the plug hub publishes readings on.
func (id PlugId) TelemetryTopic() string {
	return fmt.Sprintf("smart/plug/%d/codedata", id)
}

func (id PlugId) String() string {
	return strconv.Itoa(int(id))
}
