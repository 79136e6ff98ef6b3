// Package whitelist matches chat identifiers against whitelists and keeps
// the live lists in memory.
package whitelist

import "strings"

// originSep separates the fields of a session origin and of composite
// whitelist entries.
const originSep = ":"

// Identifier is a chat identifier compared as trimmed text. User IDs, group
// IDs, origin strings and whitelist entries all become Identifiers, so a
// numeric ID and its string form are the same value.
type Identifier string

func NewIdentifier(s string) Identifier {
	return Identifier(strings.TrimSpace(s))
}

func (id Identifier) IsZero() bool { return id == "" }

// Equal reports whether both identifiers are set and identical. The zero
// Identifier equals nothing, not even itself.
func (id Identifier) Equal(other Identifier) bool {
	return id != "" && id == other
}

func (id Identifier) String() string { return string(id) }

// lastSegment returns the part after the final separator of a composite
// identifier with at least three fields.
func (id Identifier) lastSegment() (Identifier, bool) {
	parts := strings.Split(string(id), originSep)
	if len(parts) < 3 {
		return "", false
	}
	return NewIdentifier(parts[len(parts)-1]), true
}

// Origin is a parsed "platform:messageType:sessionId" session key. When the
// raw string has fewer than three fields only Raw is set.
type Origin struct {
	Raw         Identifier
	Platform    string
	MessageType string
	SessionID   Identifier
	valid       bool
}

func ParseOrigin(s string) Origin {
	o := Origin{Raw: NewIdentifier(s)}
	parts := strings.Split(string(o.Raw), originSep)
	if len(parts) < 3 {
		return o
	}
	o.Platform = parts[0]
	o.MessageType = parts[1]
	o.SessionID = NewIdentifier(parts[2])
	o.valid = true
	return o
}

// Valid reports whether the raw string had all three fields.
func (o Origin) Valid() bool { return o.valid }
