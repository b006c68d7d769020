package venstar

import (
	"errors"
	"fmt"
)

var (
	ErrTransport      = errors.New("venstar transport error")
	ErrDeviceRejected = errors.New("venstar device rejected command")
)

// TransportError is returned when the device is unreachable or answers with something
// that is not a successful JSON response.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// DeviceRejectedError is returned when the device answered but flagged the command as an error.
type DeviceRejectedError struct {
	Reason string
}

func (e *DeviceRejectedError) Error() string {
	if e.Reason == "" {
		return ErrDeviceRejected.Error()
	}
	return fmt.Sprintf("%s: %s", ErrDeviceRejected, e.Reason)
}

func (e *DeviceRejectedError) Is(target error) bool {
	return target == ErrDeviceRejected
}
