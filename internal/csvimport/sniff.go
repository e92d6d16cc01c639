package csvimport

import "strings"

// sniffSampleSize bounds the text inspected when guessing the delimiter.
const sniffSampleSize = 10000

var (
	delimiterCandidates = []rune{',', ';', '\t', '|'}
	preferredDelimiters = []rune{',', '\t', ';'}
)

// DetectDelimiter guesses the field separator of text. It sniffs the sample
// statistically and falls back to looking at the first line.
func DetectDelimiter(text string) rune {
	sample := text
	if r := []rune(text); len(r) > sniffSampleSize {
		sample = string(r[:sniffSampleSize])
	}
	if d, ok := sniff(sample); ok {
		return d
	}

	firstLine, _, _ := strings.Cut(text, "\n")
	switch {
	case strings.Contains(firstLine, ";") && !strings.Contains(firstLine, ","):
		return ';'
	case strings.Contains(firstLine, "\t"):
		return '\t'
	default:
		return ','
	}
}

type delimiterMode struct {
	count int // occurrences per line that the most lines agree on
	score int // lines with that count minus lines with any other count
}

// sniff picks the candidate whose per-line frequency is most consistent.
// A candidate qualifies when its consistency reaches 1.0, or failing that
// some threshold down to 0.9. Ties go to the preferred order.
func sniff(sample string) (rune, bool) {
	var lines []string
	for _, l := range strings.Split(sample, "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return 0, false
	}

	modes := make(map[rune]delimiterMode, len(delimiterCandidates))
	for _, d := range delimiterCandidates {
		if m, ok := frequencyMode(lines, d); ok {
			modes[d] = m
		}
	}

	total := float64(len(lines))
	var found []rune
	for consistency := 1.0; consistency >= 0.9 && len(found) == 0; consistency -= 0.01 {
		for _, d := range delimiterCandidates {
			m, ok := modes[d]
			if !ok || m.count == 0 || m.score <= 0 {
				continue
			}
			if float64(m.score)/total >= consistency {
				found = append(found, d)
			}
		}
	}

	switch len(found) {
	case 0:
		return 0, false
	case 1:
		return found[0], true
	}
	for _, p := range preferredDelimiters {
		for _, d := range found {
			if d == p {
				return d, true
			}
		}
	}
	return found[0], true
}

// frequencyMode reports the most common per-line count of d. ok is false
// when d never appears.
func frequencyMode(lines []string, d rune) (delimiterMode, bool) {
	type freq struct{ count, lines int }
	var table []freq
	for _, line := range lines {
		n := countOutsideQuotes(line, d)
		idx := -1
		for i := range table {
			if table[i].count == n {
				idx = i
				break
			}
		}
		if idx < 0 {
			table = append(table, freq{count: n})
			idx = len(table) - 1
		}
		table[idx].lines++
	}
	if len(table) == 1 && table[0].count == 0 {
		return delimiterMode{}, false
	}

	best := 0
	for i := range table {
		if table[i].lines > table[best].lines {
			best = i
		}
	}
	others := 0
	for i := range table {
		if i != best {
			others += table[i].lines
		}
	}
	return delimiterMode{count: table[best].count, score: table[best].lines - others}, true
}

func countOutsideQuotes(line string, d rune) int {
	n := 0
	quoted := false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == d && !quoted:
			n++
		}
	}
	return n
}
