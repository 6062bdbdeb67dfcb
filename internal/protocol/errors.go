package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrTransport         = errors.New("protocol: transport failure")
	ErrTruncated         = errors.New("protocol: truncated message")
	ErrDecode            = errors.New("protocol: decode error")
	ErrProtocolViolation = errors.New("protocol: protocol violation")
	ErrUnknownEntity     = errors.New("protocol: unknown entity")
	ErrServerTerminating = fmt.Errorf("%w: server terminating", ErrProtocolViolation)
)

// UnknownEntityError names a pose update target missing from the scene registry.
type UnknownEntityError struct {
	Namespace string
	ID        string
}

func (e UnknownEntityError) Error() string {
	return fmt.Sprintf("protocol: unknown entity %s/%q", e.Namespace, e.ID)
}

func (e UnknownEntityError) Is(target error) bool {
	return target == ErrUnknownEntity
}

// MessageTypeError reports a reply carrying a different message type than requested.
type MessageTypeError struct {
	Want MessageType
	Got  MessageType
}

func (e MessageTypeError) Error() string {
	return fmt.Sprintf("protocol: message type mismatch: got %s want %s", e.Got, e.Want)
}

func (e MessageTypeError) Is(target error) bool {
	return target == ErrProtocolViolation
}
