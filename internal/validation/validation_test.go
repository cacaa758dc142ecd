package validation

import (
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUsername(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		username string
		ok       bool
	}{
		{name: "valid", username: "bearlover", ok: true},
		{name: "with digits", username: "plush_42", ok: true},
		{name: "minimum length", username: "abc", ok: true},
		{name: "maximum length", username: strings.Repeat("a", 24), ok: true},
		{name: "too short", username: "ab", ok: false},
		{name: "too long", username: strings.Repeat("a", 25), ok: false},
		{name: "uppercase", username: "BearLover", ok: false},
		{name: "hyphen", username: "bear-lover", ok: false},
		{name: "space", username: "bear lover", ok: false},
		{name: "leading underscore", username: "_bear", ok: false},
		{name: "trailing underscore", username: "bear_", ok: false},
		{name: "reserved admin", username: "admin", ok: false},
		{name: "reserved marketplace", username: "marketplace", ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateUsername(tc.username)
			if tc.ok && err != nil {
				t.Fatalf("expected valid username, got error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected invalid username, got nil error")
			}
		})
	}
}

func TestValidateTags(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		tags    []string
		wantErr bool
	}{
		{"Empty", nil, false},
		{"Valid", []string{"vintage", "jelly cat", "limited-edition"}, false},
		{"Max Count", []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}, false},
		{"Too Many", []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"}, true},
		{"Uppercase", []string{"Vintage"}, true},
		{"Blank", []string{""}, true},
		{"Too Long", []string{strings.Repeat("x", 25)}, true},
		{"Repeated", []string{"bear", "bear"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTags(tt.tags)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegister(t *testing.T) {
	v := validator.New()
	require.NoError(t, Register(v))

	assert.NoError(t, v.Var("bearlover", "username"))
	assert.Error(t, v.Var("admin", "username"))
	assert.Error(t, v.Var(42, "username"))

	assert.NoError(t, v.Var([]string{"bear"}, "tag_list"))
	assert.NoError(t, v.Var([]any{"bear", "vintage"}, "tag_list"))
	assert.Error(t, v.Var([]any{"bear", 3}, "tag_list"))
	assert.Error(t, v.Var("bear", "tag_list"))
}
