// Package domain contains entities without transport logic: peer identity,
// call metadata, the signaling wire message and the notification events.
package domain

import (
	"errors"
	"strings"
)

const (
	// MaxPeerIDLen bounds identifiers accepted by the signaling broker.
	MaxPeerIDLen = 64

	// idFiller replaces every character outside [0-9A-Za-z].
	idFiller = 'G'
)

var (
	ErrPeerIDEmpty   = errors.New("peer id empty")
	ErrPeerIDTooLong = errors.New("peer id too long")
	ErrPeerIDInvalid = errors.New("peer id has characters outside [0-9A-Za-z]")
)

// PeerID is a transport-legal identifier: only ASCII letters and digits.
type PeerID string

func (id PeerID) String() string { return string(id) }

// Sanitize maps an arbitrary session identifier to a PeerID. Every rune that
// is not an ASCII letter or digit becomes 'G', one for one, so the result has
// the same rune count as the input. Sanitize is total and idempotent.
func Sanitize(raw string) PeerID {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if isAlnum(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte(idFiller)
	}
	return PeerID(b.String())
}

// Validate checks an identifier presented to the broker as-is.
func (id PeerID) Validate() error {
	if len(id) == 0 {
		return ErrPeerIDEmpty
	}
	if len(id) > MaxPeerIDLen {
		return ErrPeerIDTooLong
	}
	for _, r := range string(id) {
		if !isAlnum(r) {
			return ErrPeerIDInvalid
		}
	}
	return nil
}

func isAlnum(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// Direction tags who initiated a peer connection.
type Direction int

const (
	// Outbound connections were placed by the local participant.
	Outbound Direction = iota
	// Inbound connections were accepted from a remote request.
	Inbound
)

func (d Direction) String() string {
	switch d {
	case Outbound:
		return "outbound"
	case Inbound:
		return "inbound"
	default:
		return "unknown"
	}
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }
