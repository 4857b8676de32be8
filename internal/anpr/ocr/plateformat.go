package ocr

import (
	"fmt"
	"math/bits"
	"regexp"
	"strings"

	"github.com/banshee-data/plate.report/internal/config"
)

// Normalize uppercases raw OCR text and strips everything that is not an
// ASCII letter or digit. Recognition output routinely carries spaces,
// hyphens, and dots that are not part of the registration.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToUpper(raw) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteByte(byte(r))
		}
	}
	return b.String()
}

// OCR engines confuse glyph pairs in both directions. Each confusable
// character has exactly one alternate reading.
var (
	digitToLetter = map[byte]byte{'0': 'O', '1': 'I', '2': 'Z', '5': 'S', '8': 'B'}
	letterToDigit = map[byte]byte{'O': '0', 'Q': '0', 'D': '0', 'I': '1', 'L': '1', 'Z': '2', 'S': '5', 'B': '8', 'T': '7'}
)

func alternate(c byte) byte {
	if a, ok := digitToLetter[c]; ok {
		return a
	}
	if a, ok := letterToDigit[c]; ok {
		return a
	}
	return 0
}

// Beyond this many confusable positions the substitution search is abandoned
// and the text passes through uncorrected.
const maxCorrectablePositions = 8

// Format validates candidate text against the expected plate layout and
// repairs character-class confusions that the layout exposes.
type Format struct {
	re  *regexp.Regexp
	min int
	max int
}

// NewFormat compiles a plate format. The pattern should be anchored; length
// bounds apply to the normalized text independently of the pattern.
func NewFormat(pattern string, minLen, maxLen int) (*Format, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid plate pattern %q: %w", pattern, err)
	}
	if minLen < 1 || maxLen < minLen {
		return nil, fmt.Errorf("invalid plate length bounds [%d, %d]", minLen, maxLen)
	}
	return &Format{re: re, min: minLen, max: maxLen}, nil
}

// FormatFromTuning builds a Format from the shared tuning file.
func FormatFromTuning(t *config.TuningConfig) (*Format, error) {
	return NewFormat(t.GetPlatePattern(), t.GetMinPlateLength(), t.GetMaxPlateLength())
}

// DefaultFormat returns the built-in plate format.
func DefaultFormat() *Format {
	f, err := FormatFromTuning(nil)
	if err != nil {
		panic(err) // the built-in pattern always compiles
	}
	return f
}

// Match reports whether text satisfies the plate pattern.
func (f *Format) Match(text string) bool {
	return f.re.MatchString(text)
}

// Plausible reports whether the text length is within configured bounds.
func (f *Format) Plausible(text string) bool {
	return len(text) >= f.min && len(text) <= f.max
}

// Correct repairs OCR character confusions guided by the plate pattern. It
// substitutes alternates only at confusable positions and only accepts a
// substitution set that makes the whole text match the pattern; candidates
// with fewer substitutions are preferred, then earlier positions. Text that
// already matches, or that cannot be made to match, is returned unchanged.
func (f *Format) Correct(text string) string {
	if f.re.MatchString(text) {
		return text
	}
	src := []byte(text)
	var idxs []int
	for i := range src {
		if alternate(src[i]) != 0 {
			idxs = append(idxs, i)
		}
	}
	n := len(idxs)
	if n == 0 || n > maxCorrectablePositions {
		return text
	}
	for k := 1; k <= n; k++ {
		for mask := 1; mask < 1<<n; mask++ {
			if bits.OnesCount(uint(mask)) != k {
				continue
			}
			cand := append([]byte(nil), src...)
			for j, idx := range idxs {
				if mask&(1<<j) != 0 {
					cand[idx] = alternate(cand[idx])
				}
			}
			if f.re.Match(cand) {
				return string(cand)
			}
		}
	}
	return text
}

// Refine normalizes raw OCR text, applies confusion correction, and gates on
// plausible length. The returned text may be aggregated only when ok is true.
func (f *Format) Refine(raw string) (string, bool) {
	text := Normalize(raw)
	if text == "" {
		return "", false
	}
	text = f.Correct(text)
	if !f.Plausible(text) {
		return text, false
	}
	return text, true
}
