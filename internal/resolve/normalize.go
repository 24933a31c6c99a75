// Package resolve maintains the matching reference: the durable mapping from
// marketplace vendor item ids to physical product identifiers. Marketplace
// listings carry identifiers in whatever shape the export pipeline mangled
// them into, so everything is normalized before it is compared or stored.
package resolve

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

var (
	digitsOnly  = regexp.MustCompile(`^[0-9]+$`)
	partPattern = regexp.MustCompile(`^[A-Z]+-[0-9]+$`)
	spaceRuns   = regexp.MustCompile(`\s+`)
)

// NormalizeBarcode cleans a raw barcode value from a spreadsheet or feed.
// Excel exports wrap barcodes in quotes and numeric casts append ".0"; both
// are stripped. Anything that is not 12 to 14 digits after cleaning is
// unusable and comes back nil.
func NormalizeBarcode(raw string) *string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"'`)
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".0")

	if len(s) < 12 || len(s) > 14 || !digitsOnly.MatchString(s) {
		return nil
	}
	return &s
}

// NormalizePartNumber uppercases and trims a manufacturer part number. Only
// the LETTERS-DIGITS shape is trusted; free-text values are dropped.
func NormalizePartNumber(raw string) *string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if !partPattern.MatchString(s) {
		return nil
	}
	return &s
}

// NormalizeName canonicalizes a product name for comparison: full-width
// characters folded to their narrow forms, NFKC-composed, lowercased, and
// whitespace collapsed. Korean marketplace listings mix full-width and ASCII
// freely for the same product.
func NormalizeName(raw string) string {
	s := width.Narrow.String(raw)
	s = norm.NFKC.String(s)
	s = strings.ToLower(strings.TrimSpace(s))
	return spaceRuns.ReplaceAllString(s, " ")
}
