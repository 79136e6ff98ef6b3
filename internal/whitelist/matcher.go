package whitelist

import "strings"

// Match reports whether any whitelist entry identifies the given sender,
// group or session. Entries are scanned in order and the first hit wins.
// For each entry the rules are tried in this order:
//
//  1. the entry is the full origin string;
//  2. the entry is the user ID;
//  3. the entry is the group ID;
//  4. a composite entry ("platform:type:id") whose last segment is the user
//     ID, the group ID or the origin's session ID;
//  5. a bare entry equal to the origin's session ID, user ID or group ID.
//
// Unset identifiers and blank entries never match, so a malformed origin
// only narrows what can match.
func Match(entries []string, userID, groupID Identifier, origin Origin) bool {
	for _, raw := range entries {
		if matchEntry(NewIdentifier(raw), userID, groupID, origin) {
			return true
		}
	}
	return false
}

func matchEntry(entry, userID, groupID Identifier, origin Origin) bool {
	if entry.IsZero() {
		return false
	}
	if origin.Raw.Equal(entry) || userID.Equal(entry) || groupID.Equal(entry) {
		return true
	}
	if strings.Contains(string(entry), originSep) {
		id, ok := entry.lastSegment()
		if !ok {
			return false
		}
		return userID.Equal(id) || groupID.Equal(id) || origin.SessionID.Equal(id)
	}
	return origin.SessionID.Equal(entry) || userID.Equal(entry) || groupID.Equal(entry)
}

// MatchStrings is Match for callers holding plain strings.
func MatchStrings(entries []string, userID, groupID, origin string) bool {
	return Match(entries, NewIdentifier(userID), NewIdentifier(groupID), ParseOrigin(origin))
}
