package types

import "testing"

func TestDisplayNameFrom(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]any
		want   string
	}{
		{"display_name first", map[string]any{"display_name": "Ada", "displayName": "A", "email": "a@x"}, "Ada"},
		{"camel case", map[string]any{"displayName": "Bo", "name": "B"}, "Bo"},
		{"name", map[string]any{"name": "Cy", "fullName": "Cy Full"}, "Cy"},
		{"full name", map[string]any{"fullName": "Di Full"}, "Di Full"},
		{"email", map[string]any{"display_name": "  ", "email": "ed@example.com"}, "ed@example.com"},
		{"non-string ignored", map[string]any{"display_name": 42, "name": "Flo"}, "Flo"},
		{"nothing", map[string]any{}, UnknownUser},
		{"nil", nil, UnknownUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DisplayNameFrom(tt.fields); got != tt.want {
				t.Errorf("DisplayNameFrom() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProfileFromFields(t *testing.T) {
	p := ProfileFromFields("u-1", map[string]any{"auth_id": "u-1", "email": "x@example.com"})
	if p.ID != "u-1" || p.DisplayName != "x@example.com" || p.Email != "x@example.com" {
		t.Errorf("unexpected profile %+v", p)
	}
}
