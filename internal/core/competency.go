package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Competency is the accounting month ("MM/YYYY") a transaction counts toward.
// The zero value means "no competency" and is rejected by Validate.
type Competency struct {
	Year  int
	Month int // 1-12
}

// NewCompetency builds a competency from a year and a possibly out-of-range month,
// rolling the surplus (or deficit) of months into the year.
func NewCompetency(year, month int) Competency {
	return competencyFromIndex(year*12 + month - 1)
}

// CompetencyOf returns the competency month of a calendar date.
func CompetencyOf(d Date) Competency {
	return Competency{Year: d.Year(), Month: d.Month()}
}

// AddMonths returns the competency of base shifted by n calendar months.
// The day of month of base is irrelevant; only month and year are used.
func AddMonths(base Date, n int) Competency {
	return CompetencyOf(base).AddMonths(n)
}

// ParseCompetency parses "MM/YYYY". A single-digit month ("3/2025") is accepted.
func ParseCompetency(s string) (Competency, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, "/")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[0]) > 2 || len(parts[1]) != 4 {
		return Competency{}, fmt.Errorf("%w: %q", ErrInvalidCompetency, s)
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil {
		return Competency{}, fmt.Errorf("%w: %q", ErrInvalidCompetency, s)
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return Competency{}, fmt.Errorf("%w: %q", ErrInvalidCompetency, s)
	}
	c := Competency{Year: year, Month: month}
	if err := c.Validate(); err != nil {
		return Competency{}, fmt.Errorf("%w: %q", ErrInvalidCompetency, s)
	}
	return c, nil
}

// MustParseCompetency is ParseCompetency for literals known to be valid.
func MustParseCompetency(s string) Competency {
	c, err := ParseCompetency(s)
	if err != nil {
		panic(err)
	}
	return c
}

// MonthsBetween returns the number of months from a to b (negative when b is before a).
func MonthsBetween(a, b Competency) int {
	return b.index() - a.index()
}

func (c Competency) index() int {
	return c.Year*12 + c.Month - 1
}

func competencyFromIndex(idx int) Competency {
	year := idx / 12
	month := idx % 12
	// Go truncates toward zero; fold negative remainders back into 0..11.
	if month < 0 {
		month += 12
		year--
	}
	return Competency{Year: year, Month: month + 1}
}

// AddMonths shifts the competency by n months in either direction.
func (c Competency) AddMonths(n int) Competency {
	return competencyFromIndex(c.index() + n)
}

// Validate reports whether the competency names a real month.
func (c Competency) Validate() error {
	if c.IsZero() {
		return ErrInvalidCompetency
	}
	if c.Month < 1 || c.Month > 12 {
		return ErrInvalidCompetency
	}
	if c.Year < 1900 || c.Year > 9999 {
		return ErrInvalidCompetency
	}
	return nil
}

func (c Competency) IsZero() bool {
	return c.Year == 0 && c.Month == 0
}

func (c Competency) Before(o Competency) bool { return c.index() < o.index() }
func (c Competency) After(o Competency) bool  { return c.index() > o.index() }

// String formats the competency as zero-padded "MM/YYYY".
func (c Competency) String() string {
	if c.IsZero() {
		return ""
	}
	return fmt.Sprintf("%02d/%04d", c.Month, c.Year)
}

// DaysIn returns the number of days of the competency month.
func (c Competency) DaysIn() int {
	return time.Date(c.Year, time.Month(c.Month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ClampDay returns the date of the given day within the month, clamped to the
// month's last valid day (day 31 in April is April 30).
func (c Competency) ClampDay(day int) Date {
	if day < 1 {
		day = 1
	}
	if last := c.DaysIn(); day > last {
		day = last
	}
	return NewDate(c.Year, c.Month, day)
}

// FirstDay returns the first calendar day of the month.
func (c Competency) FirstDay() Date { return NewDate(c.Year, c.Month, 1) }

// LastDay returns the last calendar day of the month.
func (c Competency) LastDay() Date { return NewDate(c.Year, c.Month, c.DaysIn()) }

// MarshalText encodes the competency as "MM/YYYY" (empty for the zero value).
func (c Competency) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts "MM/YYYY"; an empty string leaves the zero value.
func (c *Competency) UnmarshalText(b []byte) error {
	if strings.TrimSpace(string(b)) == "" {
		*c = Competency{}
		return nil
	}
	parsed, err := ParseCompetency(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
