package model

import (
	"errors"
	"fmt"
	"strings"
)

// Layout describes the seat map of a venue.  Each section carries a single
// price; every seat generated from the section inherits it.
type Layout struct {
	Sections []SectionLayout `json:"sections"`
}

// SectionLayout is a priced group of rows.
type SectionLayout struct {
	Name  string      `json:"name"`
	Price int64       `json:"price"`
	Rows  []RowLayout `json:"rows"`
}

// RowLayout is a row label and how many seats the section has in it.
type RowLayout struct {
	Label string `json:"label"`
	Seats int    `json:"seats"`
}

// Validate rejects empty layouts, unnamed sections, negative prices and
// rows without seats.
func (l Layout) Validate() error {
	if len(l.Sections) == 0 {
		return errors.New("layout has no sections")
	}
	seen := make(map[string]struct{}, len(l.Sections))
	for _, sec := range l.Sections {
		name := strings.TrimSpace(sec.Name)
		if name == "" {
			return errors.New("section name is required")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate section %q", name)
		}
		seen[name] = struct{}{}
		if sec.Price < 0 {
			return fmt.Errorf("section %q: price must not be negative", name)
		}
		if len(sec.Rows) == 0 {
			return fmt.Errorf("section %q has no rows", name)
		}
		for _, row := range sec.Rows {
			if strings.TrimSpace(row.Label) == "" {
				return fmt.Errorf("section %q: row label is required", name)
			}
			if row.Seats <= 0 {
				return fmt.Errorf("section %q row %q: seat count must be positive", name, row.Label)
			}
		}
	}
	return nil
}

// Seats expands the layout into available seats for showID.  Seat numbers
// are assigned per row label in section order, so a row split across two
// sections continues numbering where the previous section stopped.
func (l Layout) Seats(showID string, newID func() string) []Seat {
	next := make(map[string]int)
	var out []Seat
	for _, sec := range l.Sections {
		for _, row := range sec.Rows {
			label := strings.ToUpper(strings.TrimSpace(row.Label))
			for i := 0; i < row.Seats; i++ {
				next[label]++
				out = append(out, Seat{
					ID:      newID(),
					ShowID:  showID,
					Row:     label,
					Number:  next[label],
					Section: strings.TrimSpace(sec.Name),
					Price:   sec.Price,
					Status:  SeatAvailable,
				})
			}
		}
	}
	return out
}

// DefaultLayout is the auditorium used when a show is initialized without
// an explicit layout: rows A-J form the front section, K-T the back.
func DefaultLayout() Layout {
	counts := []struct {
		label string
		seats int
	}{
		{"A", 41}, {"B", 42}, {"C", 44}, {"D", 46}, {"E", 46},
		{"F", 48}, {"G", 48}, {"H", 50}, {"I", 52}, {"J", 52},
		{"K", 55}, {"L", 56}, {"M", 56}, {"N", 60}, {"O", 60},
		{"P", 62}, {"Q", 63}, {"R", 64}, {"S", 66}, {"T", 43},
	}
	front := SectionLayout{Name: "front", Price: 150}
	back := SectionLayout{Name: "back", Price: 100}
	for i, c := range counts {
		row := RowLayout{Label: c.label, Seats: c.seats}
		if i < 10 {
			front.Rows = append(front.Rows, row)
		} else {
			back.Rows = append(back.Rows, row)
		}
	}
	return Layout{Sections: []SectionLayout{front, back}}
}
