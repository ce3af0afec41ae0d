package verifier

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// urlPattern matches http(s):// links, bare www. links, and t.co short
// links, grounded on original_source/utils/twitterapi_validation.py's
// strip_urls regex.
var urlPattern = regexp.MustCompile(`https?://\S+|www\.\S+|t\.co/\S+`)

var whitespaceRun = regexp.MustCompile(`\s+`)

// stripURLs removes URLs from s and collapses the whitespace left behind.
func stripURLs(s string) string {
	s = urlPattern.ReplaceAllString(s, "")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// normalizeText implements spec §4.3's text normalization: URL stripping,
// Unicode NFC, CRLF/CR -> LF, whitespace collapse (line breaks included,
// so they end up as single spaces), trim. Grounded on
// original_source/utils/validation.py's norm_text, composed with strip_urls
// exactly as original_source/utils/twitterapi_validation.py does
// (strip URLs first, then normalize).
func normalizeText(s string) string {
	s = stripURLs(s)
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// textsMatch implements spec §4.3's match rule: exact equality, or miner
// text is a >=100-char prefix of the live text.
func textsMatch(minerText, liveText string) bool {
	minerNorm := normalizeText(minerText)
	liveNorm := normalizeText(liveText)
	if minerNorm == liveNorm {
		return true
	}
	if len(minerNorm) > 0 && strings.HasPrefix(liveNorm, minerNorm) && utf8.RuneCountInString(minerNorm) >= 100 {
		return true
	}
	return false
}

// normalizeAuthor lowercases and strips a leading "@".
func normalizeAuthor(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimPrefix(s, "@")
}

// metricTolerance returns max(1, ceil(0.10*live)) for live>0, else 1 —
// spec §4.3's engagement-metric tolerance, and the GLOSSARY definition.
func metricTolerance(live int64) int64 {
	if live <= 0 {
		return 1
	}
	tol := int64(math.Ceil(float64(live) * 0.10))
	if tol < 1 {
		return 1
	}
	return tol
}

// metricInflated reports whether miner overstates live beyond tolerance.
// Understatement is always permitted.
func metricInflated(miner, live int64) bool {
	return miner > live+metricTolerance(live)
}
