package account

import (
	"strconv"
	"strings"
	"time"
)

// Slug derives a URL-safe organization slug, suffixed with base36 milliseconds for uniqueness.
func Slug(name string, now time.Time) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	base := strings.TrimSuffix(b.String(), "-")
	suffix := strconv.FormatInt(now.UnixMilli(), 36)
	if base == "" {
		return "org-" + suffix
	}
	return base + "-" + suffix
}
