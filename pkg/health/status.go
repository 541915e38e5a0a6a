package health

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// UnitName is the logical name of a monitored unit as written in the feed.
type UnitName string

// Target pairs one pid of a unit with the impacts configured for it.
// Index is the position of the pid within its unit and keeps merges deterministic.
type Target struct {
	Unit   UnitName
	PID    int32
	Impact []string
	Index  int
}

// UnitStatus is the outcome for one unit.
type UnitStatus struct {
	Color  Color
	Impact []string
}

// Aggregate is the run-wide severity derived from all unit statuses.
type Aggregate string

const (
	AggregateHealthy          Aggregate = "healthy"
	AggregateLimited          Aggregate = "limited"
	AggregatePartialDegraded  Aggregate = "partial-degraded"
	AggregateMainDegraded     Aggregate = "main-degraded"
	AggregateServiceDisrupted Aggregate = "service-disrupted"
	AggregateMaintenance      Aggregate = "maintenance"
)

// IsHealthy reports whether the aggregate never pages anyone.
func (a Aggregate) IsHealthy() bool {
	return a == AggregateHealthy || a == AggregateLimited
}

// MaintenanceUnit is the default synthetic unit reported when the feed is unavailable.
const MaintenanceUnit UnitName = "jarvis"

// GlobalStatus is the verdict of one run.
type GlobalStatus struct {
	Units     map[UnitName]UnitStatus
	Aggregate Aggregate
	// Notify is set when any classification failed or a unit had to be reconciled.
	Notify bool
}

// MaintenanceStatus is the status reported without classification when the feed is missing.
func MaintenanceStatus() GlobalStatus {
	return MaintenanceStatusFor(MaintenanceUnit)
}

// MaintenanceStatusFor reports unit, usually the primary one, as the single unit under maintenance.
// An empty unit falls back to MaintenanceUnit.
func MaintenanceStatusFor(unit UnitName) GlobalStatus {
	if unit == "" {
		unit = MaintenanceUnit
	}
	return GlobalStatus{
		Units: map[UnitName]UnitStatus{
			unit: {Color: Blue, Impact: []string{"Maintenance"}},
		},
		Aggregate: AggregateMaintenance,
	}
}

// DeriveAggregate reduces unit statuses to one severity. Rules are checked in order:
// all red, primary red, any red, then healthy (limited for a single unit).
// Only set predicates are used, so map iteration order never matters.
func DeriveAggregate(units map[UnitName]UnitStatus, primary UnitName) Aggregate {
	if len(units) == 0 {
		return AggregateMaintenance
	}

	red := 0
	primaryRed := false
	primaryName := DisplayName(primary)
	for name, status := range units {
		if status.Color != Red {
			continue
		}
		red++
		if DisplayName(name) == primaryName {
			primaryRed = true
		}
	}

	switch {
	case red == len(units):
		return AggregateServiceDisrupted
	case primaryRed:
		return AggregateMainDegraded
	case red > 0:
		return AggregatePartialDegraded
	case len(units) == 1:
		return AggregateLimited
	default:
		return AggregateHealthy
	}
}

// Row is one display-ready line of the status table.
type Row struct {
	Name   string
	Color  Color
	Impact []string
}

// Rows returns the units with display names, shortest name first.
func (g GlobalStatus) Rows() []Row {
	rows := make([]Row, 0, len(g.Units))
	for name, status := range g.Units {
		rows = append(rows, Row{Name: DisplayName(name), Color: status.Color, Impact: status.Impact})
	}
	sort.Slice(rows, func(i, j int) bool {
		if len(rows[i].Name) != len(rows[j].Name) {
			return len(rows[i].Name) < len(rows[j].Name)
		}
		return rows[i].Name < rows[j].Name
	})
	return rows
}

// RedRows returns the failed rows in display order.
func (g GlobalStatus) RedRows() []Row {
	var red []Row
	for _, row := range g.Rows() {
		if row.Color == Red {
			red = append(red, row)
		}
	}
	return red
}

// DisplayName turns a feed name into a page name: underscores become spaces,
// words are capitalized and the word "Api" is written "API".
func DisplayName(name UnitName) string {
	// Casers keep state, so one is built per call.
	caser := cases.Title(language.Und)
	words := strings.Fields(strings.ReplaceAll(string(name), "_", " "))
	for i, word := range words {
		word = caser.String(word)
		if word == "Api" {
			word = "API"
		}
		words[i] = word
	}
	return strings.Join(words, " ")
}
