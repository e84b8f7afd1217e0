package lexicon

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	numberRe = regexp.MustCompile(`\$?(\d[\d,]*(?:\.\d+)?)(st|nd|rd|th|'s|s)?(%)?`)
	abbrevRe = regexp.MustCompile(`\b(mr|mrs|ms|dr|jr|sr|vs|feat|ft|prof|st)\.`)

	abbreviations = map[string]string{
		"mr":   "mister",
		"mrs":  "missus",
		"ms":   "miz",
		"dr":   "doctor",
		"jr":   "junior",
		"sr":   "senior",
		"vs":   "versus",
		"feat": "featuring",
		"ft":   "featuring",
		"prof": "professor",
		"st":   "saint",
	}

	symbolReplacer = strings.NewReplacer(
		"&", " and ",
		"+", " plus ",
		"@", " at ",
		"#", " number ",
		"=", " equals ",
		"w/", "with ",
		"’", "'",
		"‘", "'",
	)

	lower = cases.Lower(language.English)
)

// Normalize folds text into lowercase ASCII-oriented words suitable for
// dictionary lookup: accents are stripped, common symbols and abbreviations
// are spelled out, and numerals are expanded to words ("99" becomes "ninety
// nine", "3rd" becomes "third", "90s" becomes "nineties", "1999" becomes
// "nineteen ninety nine").
func Normalize(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = text
	}
	folded = lower.String(symbolReplacer.Replace(folded))
	folded = abbrevRe.ReplaceAllStringFunc(folded, func(m string) string {
		return abbreviations[strings.TrimSuffix(m, ".")]
	})
	return numberRe.ReplaceAllStringFunc(folded, expandNumber)
}

func expandNumber(m string) string {
	parts := numberRe.FindStringSubmatch(m)
	digits, suffix, percent := parts[1], parts[2], parts[3]
	dollars := strings.HasPrefix(m, "$")
	digits = strings.TrimRight(digits, ",")
	grouped := strings.Contains(digits, ",")
	digits = strings.ReplaceAll(digits, ",", "")

	var words string
	if whole, frac, ok := strings.Cut(digits, "."); ok {
		words = cardinalString(whole) + " point " + spellDigits(frac)
	} else if !grouped && !dollars && percent == "" {
		words = yearOrCardinal(whole)
	} else {
		words = cardinalString(whole)
	}

	switch suffix {
	case "st", "nd", "rd", "th":
		words = ordinal(words)
	case "s", "'s":
		words = plural(words)
	}
	if percent != "" {
		words += " percent"
	}
	if dollars {
		if words == "one" {
			words += " dollar"
		} else {
			words += " dollars"
		}
	}
	return " " + words + " "
}

func cardinalString(digits string) string {
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return spellDigits(digits)
	}
	return Cardinal(n)
}

func yearOrCardinal(digits string) string {
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return spellDigits(digits)
	}
	if len(digits) == 4 && ((n >= 1100 && n < 2000) || (n >= 2010 && n < 2100)) {
		hi, lo := n/100, n%100
		switch {
		case lo == 0:
			return Cardinal(hi) + " hundred"
		case lo < 10:
			return Cardinal(hi) + " oh " + Cardinal(lo)
		default:
			return Cardinal(hi) + " " + Cardinal(lo)
		}
	}
	return Cardinal(n)
}

var (
	ones = []string{
		"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
		"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen",
		"seventeen", "eighteen", "nineteen",
	}
	tens = []string{
		"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety",
	}
	scales = []struct {
		value int64
		name  string
	}{
		{1_000_000_000_000, "trillion"},
		{1_000_000_000, "billion"},
		{1_000_000, "million"},
		{1_000, "thousand"},
	}
)

// Cardinal spells out a non-negative integer in English words without "and"
// or hyphens, e.g. 1205 is "one thousand two hundred five".
func Cardinal(n int64) string {
	if n < 0 {
		return "minus " + Cardinal(-n)
	}
	if n < 20 {
		return ones[n]
	}
	var parts []string
	for _, s := range scales {
		if n >= s.value {
			parts = append(parts, Cardinal(n/s.value), s.name)
			n %= s.value
		}
	}
	if n >= 100 {
		parts = append(parts, ones[n/100], "hundred")
		n %= 100
	}
	if n >= 20 {
		parts = append(parts, tens[n/10])
		n %= 10
	}
	if n > 0 || len(parts) == 0 {
		parts = append(parts, ones[n])
	}
	return strings.Join(parts, " ")
}

func spellDigits(digits string) string {
	var parts []string
	for _, r := range digits {
		if r >= '0' && r <= '9' {
			parts = append(parts, ones[r-'0'])
		}
	}
	return strings.Join(parts, " ")
}

var irregularOrdinals = map[string]string{
	"one":    "first",
	"two":    "second",
	"three":  "third",
	"five":   "fifth",
	"eight":  "eighth",
	"nine":   "ninth",
	"twelve": "twelfth",
}

func ordinal(words string) string {
	head, last := splitLast(words)
	switch {
	case irregularOrdinals[last] != "":
		last = irregularOrdinals[last]
	case strings.HasSuffix(last, "y"):
		last = strings.TrimSuffix(last, "y") + "ieth"
	default:
		last += "th"
	}
	return head + last
}

func plural(words string) string {
	head, last := splitLast(words)
	switch {
	case strings.HasSuffix(last, "y"):
		last = strings.TrimSuffix(last, "y") + "ies"
	case strings.HasSuffix(last, "x"):
		last += "es"
	default:
		last += "s"
	}
	return head + last
}

func splitLast(words string) (head, last string) {
	i := strings.LastIndexByte(words, ' ')
	return words[:i+1], words[i+1:]
}
