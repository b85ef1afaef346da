package types

import "strings"

// UnknownUser is the display name used when a profile names nobody.
const UnknownUser = "Unknown user"

// displayNameFields are checked in order; the first non-empty string wins.
var displayNameFields = []string{"display_name", "displayName", "name", "fullName", "email"}

// DisplayNameFrom picks a display name out of a loosely shaped profile
// document.
func DisplayNameFrom(fields map[string]any) string {
	for _, k := range displayNameFields {
		if s, ok := fields[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return UnknownUser
}

// ProfileFromFields builds a UserProfile from a raw profile document.
func ProfileFromFields(id UserID, fields map[string]any) *UserProfile {
	p := &UserProfile{ID: id, DisplayName: DisplayNameFrom(fields)}
	if email, ok := fields["email"].(string); ok {
		p.Email = email
	}
	return p
}
