// Package macro substitutes VAST URI macros in tracking URLs.
package macro

import (
	"crypto/rand"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Values holds the substitutions applied to one URL.
type Values struct {
	Timestamp time.Time
	ErrorCode int
	AssetURI  string
}

// Expand replaces the VAST macros this service supports. Unknown macros are
// left intact for the downstream server to interpret.
func Expand(rawURL string, values Values) string {
	replacements := []string{
		"[CACHEBUSTING]", cacheBuster(),
	}
	if !values.Timestamp.IsZero() {
		replacements = append(replacements,
			"[TIMESTAMP]", url.QueryEscape(values.Timestamp.UTC().Format("2006-01-02T15:04:05.000-0700")),
		)
	}
	if values.ErrorCode != 0 {
		replacements = append(replacements, "[ERRORCODE]", strconv.Itoa(values.ErrorCode))
	}
	if values.AssetURI != "" {
		replacements = append(replacements, "[ASSETURI]", url.QueryEscape(values.AssetURI))
	}
	return strings.NewReplacer(replacements...).Replace(rawURL)
}

// cacheBuster returns the 8-digit random number the VAST spec prescribes.
func cacheBuster() string {
	n, err := rand.Int(rand.Reader, big.NewInt(100000000))
	if err != nil {
		return strconv.FormatInt(time.Now().UnixNano()%100000000, 10)
	}
	return n.String()
}
