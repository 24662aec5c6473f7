// Package classify maps filenames to Canadian tax document types.
//
// Classification is a pure, total function: case-insensitive substring
// matching over an ordered code list, with no I/O. It only sees the
// filename; anything it cannot name is left for a later extraction model
// or manual handling.
package classify

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/acctax/taxflow/constants"
)

// Detect returns the document type for a filename, or TypeUnknown when no
// rule matches. Slip codes are tested most-specific first so that a
// filename like "T5008_2024.pdf" classifies as T5008, not T5.
func Detect(filename string) constants.DocumentType {
	upper := strings.ToUpper(filename)
	for _, code := range constants.TypePrecedence {
		if strings.Contains(upper, string(code)) {
			return code
		}
	}
	if strings.Contains(upper, "DONATION") || strings.Contains(upper, "CHARITABLE") {
		return constants.TypeDonation
	}
	return constants.TypeUnknown
}

var taxYearRe = regexp.MustCompile(`20[2-3][0-9]`)

// TaxYear extracts a plausible tax year (2020-2039) from a filename.
// Returns nil when the filename carries no year.
func TaxYear(filename string) *int {
	m := taxYearRe.FindString(filename)
	if m == "" {
		return nil
	}
	year, _ := strconv.Atoi(m)
	return &year
}
