package account

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// FullName joins the name parts, skipping an empty middle name.
func FullName(first, middle, last string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{first, middle, last} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// DisplayName is the first name followed by the last initial, e.g. "Ada L.".
func DisplayName(first, last string) string {
	first = strings.TrimSpace(first)
	r := firstRune(last)
	if r == 0 {
		return first
	}
	return first + " " + string(r) + "."
}

// Initials returns the upper-cased first letters of first and last name.
func Initials(first, last string) string {
	var b strings.Builder
	for _, s := range []string{first, last} {
		if r := firstRune(s); r != 0 {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

func firstRune(s string) rune {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

// View is the public JSON shape of a user. Derived name fields are computed here and never stored.
type View struct {
	ID             string    `json:"id"`
	FirstName      string    `json:"first_name"`
	MiddleName     *string   `json:"middle_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email"`
	OrganizationID *string   `json:"org_id"`
	Role           Role      `json:"role"`
	InvitedBy      *string   `json:"invited_by"`
	FullName       string    `json:"full_name"`
	DisplayName    string    `json:"display_name"`
	Initials       string    `json:"initials"`
	CreatedAt      time.Time `json:"created_at"`
}

// View renders the user without the password hash.
func (u *User) View() View {
	return View{
		ID:             u.ID,
		FirstName:      u.FirstName,
		MiddleName:     optional(u.MiddleName),
		LastName:       u.LastName,
		Email:          u.Email,
		OrganizationID: optional(u.OrganizationID),
		Role:           u.Role,
		InvitedBy:      optional(u.InvitedBy),
		FullName:       FullName(u.FirstName, u.MiddleName, u.LastName),
		DisplayName:    DisplayName(u.FirstName, u.LastName),
		Initials:       Initials(u.FirstName, u.LastName),
		CreatedAt:      u.CreatedAt,
	}
}

// Summary is the compact user reference embedded in tasks and notifications.
type Summary struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	FullName    string `json:"full_name"`
	DisplayName string `json:"display_name"`
	Initials    string `json:"initials"`
}

// NewSummary builds a Summary from name parts.
func NewSummary(id, first, middle, last, email string) Summary {
	return Summary{
		ID:          id,
		FirstName:   first,
		LastName:    last,
		Email:       email,
		FullName:    FullName(first, middle, last),
		DisplayName: DisplayName(first, last),
		Initials:    Initials(first, last),
	}
}

// Summary renders the compact reference for u.
func (u *User) Summary() Summary {
	return NewSummary(u.ID, u.FirstName, u.MiddleName, u.LastName, u.Email)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
