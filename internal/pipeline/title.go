package pipeline

import (
	"path/filepath"
	"regexp"
	"strings"
)

// MaxTitleLength is the post title ceiling imposed by the platform.
const MaxTitleLength = 200

var (
	copyCounter = regexp.MustCompile(`\(\d+\)`)
	nonAlnum    = regexp.MustCompile(`[^a-zA-Z0-9 ]+`)
	multiSpace  = regexp.MustCompile(` {2,}`)
)

// CleanFilename strips sync-client copy counters like "(1)" from a
// filename while keeping its extension.
func CleanFilename(name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	base = copyCounter.ReplaceAllString(base, "")
	return strings.TrimSpace(base) + ext
}

// PostTitle derives a human-readable post title from a filename: the
// extension and copy counters are dropped, underscores become spaces,
// remaining punctuation is removed and runs of whitespace collapse to
// a single space. The result is capped at MaxTitleLength.
func PostTitle(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = copyCounter.ReplaceAllString(base, "")
	base = strings.ReplaceAll(base, "_", " ")
	base = nonAlnum.ReplaceAllString(base, "")
	base = multiSpace.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)
	if len(base) > MaxTitleLength {
		base = strings.TrimSpace(base[:MaxTitleLength])
	}
	return base
}
