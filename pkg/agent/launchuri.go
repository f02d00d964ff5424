package agent

import (
	"errors"
	"strings"
)

// ErrInvalidLaunchURI is returned when the browser handed us an argument the
// agent cannot parse.
var ErrInvalidLaunchURI = errors.New("invalid launch URI")

// ParseLaunchURI takes the custom-scheme argument the browser launches the
// agent with, "scheme:/{roomId}_{host}", and splits it on the FIRST
// underscore. The host may legally contain underscores itself, so everything
// after the first one is the host. Changing this breaks agents in the field.
func ParseLaunchURI(raw string) (roomID, host string, err error) {
	argument := raw
	if index := strings.Index(argument, ":/"); index >= 0 {
		argument = argument[index+2:]
	}
	argument = strings.TrimLeft(argument, "/")

	parts := strings.SplitN(argument, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrInvalidLaunchURI
	}
	return parts[0], parts[1], nil
}
