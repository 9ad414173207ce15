package account

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskflow.dev/internal/apperr"
)

func TestNameDerivations(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", FullName("Ada", "", "Lovelace"))
	assert.Equal(t, "Ada King Lovelace", FullName("Ada", "King", "Lovelace"))
	assert.Equal(t, "Ada L.", DisplayName("Ada", "Lovelace"))
	assert.Equal(t, "Ada", DisplayName("Ada", ""))
	assert.Equal(t, "AL", Initials("ada", "lovelace"))
	assert.Equal(t, "ÉÖ", Initials("émile", "ödön"))
}

func TestViewOmitsPasswordAndDerivesNames(t *testing.T) {
	u := &User{
		ID:             "u1",
		FirstName:      "Grace",
		MiddleName:     "Brewster",
		LastName:       "Hopper",
		Email:          "grace@example.com",
		PasswordHash:   "$2a$10$secret",
		OrganizationID: "o1",
		Role:           RoleAdmin,
		CreatedAt:      time.Unix(0, 0).UTC(),
	}
	raw, err := json.Marshal(u.View())
	require.NoError(t, err)
	body := string(raw)

	assert.NotContains(t, body, "secret")
	assert.Contains(t, body, `"full_name":"Grace Brewster Hopper"`)
	assert.Contains(t, body, `"display_name":"Grace H."`)
	assert.Contains(t, body, `"initials":"GH"`)
	assert.Contains(t, body, `"org_id":"o1"`)
	assert.Contains(t, body, `"invited_by":null`)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Admin ")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)

	_, err = ParseRole("owner")
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestSlug(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	s := Slug("  Acme, Inc. & Sons ", now)
	assert.True(t, strings.HasPrefix(s, "acme-inc-sons-"), s)
	assert.Equal(t, "org-"+strings.TrimPrefix(s, "acme-inc-sons-"), Slug("!!!", now))
	assert.NotEqual(t, s, Slug("Acme, Inc. & Sons", now.Add(time.Millisecond)))
}
