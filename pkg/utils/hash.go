package utils

import (
	"strconv"
	"strings"

	"github.com/OneOfOne/xxhash"
)

// Fingerprint returns a short stable hash of s for log correlation. Surrounding
// whitespace and case are ignored so resubmissions of the same claim match.
func Fingerprint(s string) string {
	sum := xxhash.ChecksumString64(strings.ToLower(strings.TrimSpace(s)))
	return strconv.FormatUint(sum, 16)
}
