package postform

import (
	"regexp"
	"strings"
)

// MaxSlugLength caps derived slugs.
const MaxSlugLength = 20

var nonSlugRun = regexp.MustCompile(`[^a-z0-9]+`)

// DeriveSlug turns a title into a URL-safe slug: lowercase alphanumerics
// separated by single hyphens, at most MaxSlugLength characters. The cut may
// fall mid-word; hyphens left at either end are dropped, so the result is a
// fixed point of DeriveSlug.
func DeriveSlug(title string) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = nonSlugRun.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > MaxSlugLength {
		slug = strings.TrimRight(slug[:MaxSlugLength], "-")
	}
	return slug
}
