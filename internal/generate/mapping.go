package generate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/docfill/internal/engine"
	"github.com/dgallion1/docfill/internal/personnel"
	"github.com/dgallion1/docfill/internal/profile"
	"github.com/dgallion1/docfill/internal/sheet"
)

var months = [...]string{
	"января", "февраля", "марта", "апреля", "мая", "июня",
	"июля", "августа", "сентября", "октября", "ноября", "декабря",
}

// LongDate renders t as "5 марта 2025 года".
func LongDate(t time.Time) string {
	return fmt.Sprintf("%d %s %d года", t.Day(), months[t.Month()-1], t.Year())
}

// Inputs is everything a mapping is assembled from. Row, Leader and Worker
// are nil when the profile does not use them.
type Inputs struct {
	Profile  *profile.Profile
	Form     map[string]string
	KeyValue string
	Row      *sheet.Row
	Leader   *personnel.Employee
	Worker   *personnel.Employee
	Now      time.Time
}

// BuildMapping assembles the token values for one document. All values are
// strings; numbers and dates are formatted here.
func BuildMapping(in Inputs) (engine.Mapping, error) {
	m := engine.Mapping{}
	now := in.Now

	year := strconv.Itoa(now.Year())
	m.Set("curr_year", year)
	m.Set("year_short", year[len(year)-2:])
	m.Set("curr_date", now.Format("02.01.2006"))
	m.Set("str_curr_date", LongDate(now))
	m.Set("timestamp", now.Format("20060102_150405"))

	p := in.Profile
	for _, tok := range p.KeyTokens {
		m.Set(tok, strings.TrimSpace(in.KeyValue))
	}
	for field, tokens := range p.Form {
		v := strings.TrimSpace(in.Form[field])
		for _, tok := range tokens {
			m.Set(tok, v)
		}
	}

	if in.Row != nil {
		for _, c := range p.Columns {
			v, err := formatCell(cellValue(*in.Row, c), c.Format)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", c, err)
			}
			m.Set(c.Token, v)
		}
	}

	derive(m, now)

	if in.Leader != nil {
		setPerson(m, "leader", *in.Leader)
	}
	if in.Worker != nil {
		setPerson(m, "worker", *in.Worker)
	}
	return m, nil
}

func setPerson(m engine.Mapping, role string, e personnel.Employee) {
	m.Set(role+"_full", e.FullName())
	m.Set(role+"_short", e.ShortName())
	m.Set(role+"_position", e.Position)
	m.Set(role+"_license", e.License)
}

// derive fills the composite values when their parts are present.
func derive(m engine.Mapping, now time.Time) {
	get := func(name string) (string, bool) {
		v, ok := m[engine.Token(name)]
		return v, ok
	}
	if typ, ok := get("pipline_type"); ok {
		if name, ok := get("pipline_name"); ok {
			m.Set("full_pipline_name", fmt.Sprintf("%s «%s»", typ, name))
		}
	}
	if diam, ok := get("wall_diam"); ok {
		if thic, ok := get("wall_thic"); ok {
			m.Set("wall_params", diam+"x"+thic)
		}
	}
	if y, ok := get("year_of_commissioning"); ok && y != "" {
		if n, err := strconv.Atoi(y); err == nil {
			m.Set("years_of_using", strconv.Itoa(now.Year()-n))
		}
	}
}

func cellValue(r sheet.Row, c profile.Column) string {
	if c.Header != "" {
		if v, ok := r.Named(c.Header); ok {
			return v
		}
		return ""
	}
	if c.Index != nil {
		return r.Cell(*c.Index)
	}
	return ""
}

func formatCell(raw string, f profile.Format) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	switch f {
	case profile.FormatDate:
		t, err := sheet.ParseDate(raw)
		if err != nil {
			return "", err
		}
		return t.Format("02.01.2006"), nil
	case profile.FormatYear:
		if n, err := strconv.Atoi(raw); err == nil && n >= 1000 && n <= 9999 {
			return raw, nil
		}
		t, err := sheet.ParseDate(raw)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(t.Year()), nil
	case profile.FormatDecimalComma:
		return sheet.DecimalComma(raw), nil
	default:
		return raw, nil
	}
}
