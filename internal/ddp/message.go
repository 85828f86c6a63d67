package ddp

import (
	"errors"
	"fmt"
	"strings"
)

// MessageType is the request verb on the first line of a DDP message.
type MessageType string

// Recognised request types
const (
	TypeSearch MessageType = "SRCH"
	TypeLaunch MessageType = "LAUNCH"
	TypeWakeup MessageType = "WAKEUP"
)

// Protocol constants
const (
	// ProtocolVersion is sent as the last header of every request
	ProtocolVersion = "00020020"

	// DefaultRemotePort is the console's DDP port
	DefaultRemotePort = 987

	// DefaultLocalPort is the preferred local port; an ephemeral port is used
	// when it cannot be bound
	DefaultLocalPort = 1987

	// BroadcastAddress is the limited broadcast address used for searches
	BroadcastAddress = "255.255.255.255"
)

// Request header keys
const (
	HeaderProtocolVersion = "device-discovery-protocol-version"
	HeaderUserCredential  = "user-credential"
	HeaderClientType      = "client-type"
	HeaderAuthType        = "auth-type"
)

// ErrInvalidMessageType is returned by Encode for a type other than
// SRCH, LAUNCH or WAKEUP.
var ErrInvalidMessageType = errors.New("invalid DDP message type")

// Header is one key:value line of a request. Headers are written in the
// order given.
type Header struct {
	Key   string
	Value string
}

// Valid reports whether t is one of the recognised request types.
func (t MessageType) Valid() bool {
	switch t {
	case TypeSearch, TypeLaunch, TypeWakeup:
		return true
	}
	return false
}

// Encode builds a request of the given type. Headers are written in order,
// followed by the protocol version header. Header values are not validated.
func Encode(t MessageType, headers ...Header) (string, error) {
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMessageType, string(t))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s * HTTP/1.1\n", t)
	for _, h := range headers {
		fmt.Fprintf(&b, "%s:%s\n", h.Key, h.Value)
	}
	fmt.Fprintf(&b, "%s:%s\n", HeaderProtocolVersion, ProtocolVersion)
	return b.String(), nil
}

// SearchMessage returns the SRCH request used for discovery and status polls.
func SearchMessage() string {
	msg, _ := Encode(TypeSearch)
	return msg
}

// WakeupMessage returns a WAKEUP request carrying the given credential.
func WakeupMessage(credential string) string {
	msg, _ := Encode(TypeWakeup, credentialHeaders(credential)...)
	return msg
}

// LaunchMessage returns a LAUNCH request carrying the given credential.
func LaunchMessage(credential string) string {
	msg, _ := Encode(TypeLaunch, credentialHeaders(credential)...)
	return msg
}

func credentialHeaders(credential string) []Header {
	return []Header{
		{Key: HeaderUserCredential, Value: credential},
		{Key: HeaderClientType, Value: "a"},
		{Key: HeaderAuthType, Value: "C"},
	}
}
