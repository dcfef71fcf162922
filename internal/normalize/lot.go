package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	lotUnicoRe = regexp.MustCompile(`(?i)\bLOTTO\s+UNICO\b`)
	lotNumsRe  = regexp.MustCompile(`(?i)\bLOTT[OI]\s+(\d+(?:\s*[,/–-]\s*\d+)*)`)
	digitsRe   = regexp.MustCompile(`\d+`)
)

// LotLabel is the canonical form of an auction lot identifier extracted from
// free text: either the single "Lotto Unico" or a set of lot numbers.
type LotLabel struct {
	Unico bool
	Nums  []int
}

// ParseLotLabel derives the canonical lot label from free text. ok is false
// when the text contains no lot keyword at all, which consumers must treat as
// "cannot verify", never as a mismatch.
func ParseLotLabel(text string) (LotLabel, bool) {
	cleaned := strings.Join(strings.Fields(text), " ")
	if cleaned == "" {
		return LotLabel{}, false
	}
	if lotUnicoRe.MatchString(cleaned) {
		return LotLabel{Unico: true}, true
	}
	m := lotNumsRe.FindStringSubmatch(cleaned)
	if m == nil {
		return LotLabel{}, false
	}
	raw := digitsRe.FindAllString(m[1], -1)
	nums := make([]int, 0, len(raw))
	for _, d := range raw {
		n, err := strconv.Atoi(d)
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	if len(nums) == 0 {
		return LotLabel{}, false
	}
	return LotLabel{Nums: nums}, true
}

// String renders the display form: "Lotto Unico", "Lotto 3", or
// "Lotti 1, 2".
func (l LotLabel) String() string {
	if l.Unico {
		return "Lotto Unico"
	}
	if len(l.Nums) == 1 {
		return fmt.Sprintf("Lotto %d", l.Nums[0])
	}
	parts := make([]string, len(l.Nums))
	for i, n := range l.Nums {
		parts[i] = strconv.Itoa(n)
	}
	return "Lotti " + strings.Join(parts, ", ")
}

// RangeString renders the compact range form used in comparison contexts,
// e.g. "Lotti 1–3".
func (l LotLabel) RangeString() string {
	if l.Unico || len(l.Nums) <= 1 {
		return l.String()
	}
	lo, hi := l.bounds()
	return fmt.Sprintf("Lotti %d–%d", lo, hi)
}

// Equal reports whether two labels name the same lots. The list form
// ("Lotti 1, 2, 3") and the range form ("Lotti 1–3") compare equal.
func (l LotLabel) Equal(o LotLabel) bool {
	if l.Unico || o.Unico {
		return l.Unico == o.Unico
	}
	llo, lhi := l.bounds()
	olo, ohi := o.bounds()
	return llo == olo && lhi == ohi
}

func (l LotLabel) bounds() (lo, hi int) {
	for i, n := range l.Nums {
		if i == 0 || n < lo {
			lo = n
		}
		if i == 0 || n > hi {
			hi = n
		}
	}
	return lo, hi
}
