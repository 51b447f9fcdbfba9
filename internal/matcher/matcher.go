package matcher

import (
	"regexp"
	"sort"
	"strings"
)

// Scanner payloads and configured door numbers both go through Normalize so
// that "g1 - door 01" and "G1-DOOR 1" can meet on at least one form.

var dashes = strings.NewReplacer(
	"\u2010", "-",
	"\u2011", "-",
	"\u2012", "-",
	"\u2013", "-",
	"\u2014", "-",
	"\u2015", "-",
	"\u2212", "-",
)

var (
	digitsRe     = regexp.MustCompile(`^\d+$`)
	dashSpaceRe  = regexp.MustCompile(`\s*-\s*`)
	doorRe       = regexp.MustCompile(`DOOR\s*([A-Z0-9]+)`)
	tailRe       = regexp.MustCompile(`([A-Z0-9]+)$`)
	gatePartRe   = regexp.MustCompile(`^GATE\s*([A-Z0-9]+)$`)
	gateCodeRe   = regexp.MustCompile(`^[A-Z]{1,6}\d[A-Z0-9]*$`)
	gateTokenRe  = regexp.MustCompile(`\b[A-Z]{1,6}\d[A-Z0-9]*\b`)
	gateSuffixRe = regexp.MustCompile(`\bGATE\s*[- ]*\s*([A-Z0-9]+)\b`)
)

// Normalize collapses whitespace, upper-cases and folds unicode dashes to '-'.
func Normalize(v string) string {
	return dashes.Replace(strings.ToUpper(strings.Join(strings.Fields(v), " ")))
}

type set map[string]struct{}

func (s set) add(v ...string) {
	for _, x := range v {
		s[x] = struct{}{}
	}
}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// canonical strips leading zeros from a digit string ("007" -> "7", "000" -> "0").
func canonical(digits string) string {
	c := strings.TrimLeft(digits, "0")
	if c == "" {
		return "0"
	}
	return c
}

func zfill(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

func numericVariants(token string) []string {
	n := Normalize(token)
	if n == "" || !digitsRe.MatchString(n) {
		return nil
	}
	c := canonical(n)
	return []string{c, zfill(c, 2), zfill(c, 3)}
}

// Candidates lists every form a scanned payload may take when compared with a
// configured door number. The result is sorted and free of duplicates.
func Candidates(v string) []string {
	base := Normalize(v)
	if base == "" {
		return nil
	}

	forms := set{}
	forms.add(base)

	compact := dashSpaceRe.ReplaceAllString(base, "-")
	forms.add(compact, strings.ReplaceAll(compact, "-", " - "))

	if strings.Contains(base, "-") {
		for _, p := range strings.Split(base, "-") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			forms.add(p)
			forms.add(numericVariants(p)...)
		}
	}

	if m := doorRe.FindStringSubmatch(base); m != nil {
		number := m[1]
		forms.add("DOOR "+number, "DOOR"+number, number)
		if digitsRe.MatchString(number) {
			c := canonical(number)
			for _, x := range []string{c, zfill(c, 2), zfill(c, 3)} {
				forms.add(x, "DOOR "+x, "DOOR"+x)
			}
		}
	}

	if m := tailRe.FindStringSubmatch(base); m != nil {
		forms.add(m[1])
		forms.add(numericVariants(m[1])...)
	}

	expanded := set{}
	for f := range forms {
		n := Normalize(f)
		if n == "" {
			continue
		}
		expanded.add(n, strings.ReplaceAll(n, " ", ""))
	}
	return expanded.sorted()
}

func addGateSuffix(hints set, suffix string) {
	s := strings.ReplaceAll(Normalize(suffix), " ", "")
	if s == "" {
		return
	}
	hints.add("G"+s, "GATE"+s, "GATE "+s, s)
}

// GateHints extracts the gate codes a payload names, if any. An empty result
// means the scan carries no gate context and matches on door number alone.
func GateHints(v string) []string {
	base := Normalize(v)
	if base == "" {
		return nil
	}

	hints := set{}
	var parts []string
	for _, p := range dashSpaceRe.Split(base, -1) {
		if n := Normalize(p); n != "" {
			parts = append(parts, n)
		}
	}
	if len(parts) > 0 && !strings.HasPrefix(parts[0], "DOOR") {
		first := parts[0]
		if m := gatePartRe.FindStringSubmatch(first); m != nil {
			addGateSuffix(hints, m[1])
		} else if gateCodeRe.MatchString(first) {
			hints.add(first)
		}
	}

	for _, tok := range gateTokenRe.FindAllString(base, -1) {
		n := Normalize(tok)
		if strings.HasPrefix(n, "DOOR") {
			continue
		}
		hints.add(n)
	}

	for _, m := range gateSuffixRe.FindAllStringSubmatch(base, -1) {
		addGateSuffix(hints, m[1])
	}

	return hints.sorted()
}
