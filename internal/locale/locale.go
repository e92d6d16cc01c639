// Package locale formats numbers, money and dates for the active language.
package locale

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// CookieName holds the language explicitly chosen by the user.
const CookieName = "lang"

// Supported lists the languages the UI offers, default first.
var Supported = []language.Tag{language.BrazilianPortuguese, language.English}

var matcher = language.NewMatcher(Supported)

// Match resolves the language from an explicit choice (cookie) and the
// Accept-Language header. Unknown values fall back to Portuguese.
func Match(choice, acceptLanguage string) language.Tag {
	var prefs []language.Tag
	if choice != "" {
		if t, err := language.Parse(choice); err == nil {
			prefs = append(prefs, t)
		}
	}
	if tags, _, err := language.ParseAcceptLanguage(acceptLanguage); err == nil {
		prefs = append(prefs, tags...)
	}
	_, idx, _ := matcher.Match(prefs...)
	return Supported[idx]
}

// Formatter renders values for one language. The zero value is not usable;
// build it with New.
type Formatter struct {
	tag     language.Tag
	printer *message.Printer
}

func New(tag language.Tag) Formatter {
	base, _ := tag.Base()
	printTag := language.AmericanEnglish
	if base.String() == "pt" {
		printTag = language.BrazilianPortuguese
	}
	return Formatter{tag: tag, printer: message.NewPrinter(printTag)}
}

// Lang is the BCP 47 code of the formatter's language.
func (f Formatter) Lang() string { return f.tag.String() }

func (f Formatter) portuguese() bool {
	base, _ := f.tag.Base()
	return base.String() == "pt"
}

func (f Formatter) english() bool {
	base, _ := f.tag.Base()
	return base.String() == "en"
}

// Number formats v with grouping and a fixed number of decimals.
func (f Formatter) Number(v float64, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	return f.printer.Sprint(number.Decimal(v, number.Scale(decimals)))
}

// Money formats v as currency with two decimals.
func (f Formatter) Money(v float64) string {
	return f.format(v, 2, true)
}

// Brl is the template-facing formatter. args follows "decimals,with_prefix"
// (e.g. "1,False"); value may be any number, a numeric string or a pointer
// to float64. Values that are not numbers render as "-".
func (f Formatter) Brl(value any, args ...string) string {
	decimals, prefix := 2, true
	if len(args) > 0 {
		parts := strings.Split(args[0], ",")
		if d, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil && d >= 0 {
			decimals = d
		}
		if len(parts) > 1 {
			switch strings.ToLower(strings.TrimSpace(parts[1])) {
			case "false", "0", "no":
				prefix = false
			}
		}
	}

	v, ok := toFloat(value)
	if !ok {
		return "-"
	}
	return f.format(v, decimals, prefix)
}

func (f Formatter) format(v float64, decimals int, prefix bool) string {
	s := f.Number(v, decimals)
	if !prefix {
		return s
	}
	if f.portuguese() {
		return "R$ " + s
	}
	return "$ " + s
}

var ptMonths = [...]string{"Jan", "Fev", "Mar", "Abr", "Mai", "Jun", "Jul", "Ago", "Set", "Out", "Nov", "Dez"}

// Date renders a timestamp as "Jan/02/2006 15:04" for English and
// "02/Jan/2006 15:04" otherwise. Month names follow the language.
func (f Formatter) Date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	month := t.Format("Jan")
	if f.portuguese() {
		month = ptMonths[t.Month()-1]
	}
	if f.english() {
		return fmt.Sprintf("%s/%02d/%d %s", month, t.Day(), t.Year(), t.Format("15:04"))
	}
	return fmt.Sprintf("%02d/%s/%d %s", t.Day(), month, t.Year(), t.Format("15:04"))
}

func toFloat(value any) (float64, bool) {
	var v float64
	switch x := value.(type) {
	case float64:
		v = x
	case *float64:
		if x == nil {
			return 0, false
		}
		v = *x
	case float32:
		v = float64(x)
	case int:
		v = float64(x)
	case int64:
		v = float64(x)
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		v = p
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
