package domain

import (
	"fmt"
	"strings"
)

// DeliveryStatus is the lifecycle stage of a message: sent < delivered < read.
type DeliveryStatus uint8

const (
	StatusSent DeliveryStatus = iota
	StatusDelivered
	StatusRead
)

func (s DeliveryStatus) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusDelivered:
		return "delivered"
	case StatusRead:
		return "read"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Valid reports whether s is one of the three known stages.
func (s DeliveryStatus) Valid() bool {
	return s <= StatusRead
}

// Advances reports whether moving from s to next is forward progress.
func (s DeliveryStatus) Advances(next DeliveryStatus) bool {
	return next.Valid() && next > s
}

func (s DeliveryStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid delivery status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *DeliveryStatus) UnmarshalText(b []byte) error {
	v, err := ParseDeliveryStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseDeliveryStatus parses the wire name of a status.
func ParseDeliveryStatus(v string) (DeliveryStatus, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "sent":
		return StatusSent, nil
	case "delivered":
		return StatusDelivered, nil
	case "read":
		return StatusRead, nil
	}
	return 0, fmt.Errorf("%w: unknown delivery status %q", ErrInvalidInput, v)
}
