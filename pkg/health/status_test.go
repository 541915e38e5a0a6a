package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusMap(colors map[UnitName]Color) map[UnitName]UnitStatus {
	units := make(map[UnitName]UnitStatus, len(colors))
	for name, color := range colors {
		units[name] = UnitStatus{Color: color}
	}
	return units
}

func TestDeriveAggregate(t *testing.T) {
	tests := []struct {
		name     string
		units    map[UnitName]Color
		expected Aggregate
	}{
		{name: "empty", units: map[UnitName]Color{}, expected: AggregateMaintenance},
		{name: "all green", units: map[UnitName]Color{"jarvis": Green, "sync": Green}, expected: AggregateHealthy},
		{name: "yellow is still healthy", units: map[UnitName]Color{"jarvis": Yellow, "sync": Green}, expected: AggregateHealthy},
		{name: "single unit", units: map[UnitName]Color{"jarvis": Green}, expected: AggregateLimited},
		{name: "single unit red", units: map[UnitName]Color{"jarvis": Red}, expected: AggregateServiceDisrupted},
		{name: "all red beats primary red", units: map[UnitName]Color{"jarvis": Red, "sync": Red}, expected: AggregateServiceDisrupted},
		{name: "primary red", units: map[UnitName]Color{"jarvis": Red, "sync": Green, "api": Yellow}, expected: AggregateMainDegraded},
		{name: "primary red with other red", units: map[UnitName]Color{"jarvis": Red, "sync": Red, "api": Green}, expected: AggregateMainDegraded},
		{name: "non primary red", units: map[UnitName]Color{"jarvis": Green, "sync": Red}, expected: AggregatePartialDegraded},
		{name: "primary display name", units: map[UnitName]Color{"Jarvis": Red, "sync": Green}, expected: AggregateMainDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeriveAggregate(statusMap(tt.units), "jarvis"))
		})
	}
}

func TestDeriveAggregate_OrderIndependent(t *testing.T) {
	colors := map[UnitName]Color{
		"jarvis": Green, "sync": Red, "api": Yellow, "speech_synthesis": Green, "telegram_api": Red,
	}
	first := DeriveAggregate(statusMap(colors), "jarvis")

	// Go randomizes map iteration, so repeated derivations exercise different orders.
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, DeriveAggregate(statusMap(colors), "jarvis"))
	}
	assert.Equal(t, AggregatePartialDegraded, first)
}

func TestAggregateIsHealthy(t *testing.T) {
	assert.True(t, AggregateHealthy.IsHealthy())
	assert.True(t, AggregateLimited.IsHealthy())
	assert.False(t, AggregateMaintenance.IsHealthy())
	assert.False(t, AggregatePartialDegraded.IsHealthy())
}

func TestMaintenanceStatus(t *testing.T) {
	status := MaintenanceStatus()

	assert.Equal(t, AggregateMaintenance, status.Aggregate)
	assert.Len(t, status.Units, 1)
	assert.Equal(t, UnitStatus{Color: Blue, Impact: []string{"Maintenance"}}, status.Units[MaintenanceUnit])
	assert.Equal(t, "Jarvis", status.Rows()[0].Name)
}

func TestMaintenanceStatusFor(t *testing.T) {
	status := MaintenanceStatusFor("friday_core")

	assert.Equal(t, AggregateMaintenance, status.Aggregate)
	require.Len(t, status.Units, 1)
	assert.Equal(t, Blue, status.Units["friday_core"].Color)
	assert.Equal(t, "Friday Core", status.Rows()[0].Name)

	assert.Equal(t, MaintenanceStatus(), MaintenanceStatusFor(""))
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name     UnitName
		expected string
	}{
		{name: "jarvis", expected: "Jarvis"},
		{name: "jarvis_api", expected: "Jarvis API"},
		{name: "api", expected: "API"},
		{name: "speech_synthesis", expected: "Speech Synthesis"},
		{name: "background__tasks", expected: "Background Tasks"},
		{name: "TELEGRAM_bot", expected: "Telegram Bot"},
		{name: "apiary", expected: "Apiary"},
	}

	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			assert.Equal(t, tt.expected, DisplayName(tt.name))
		})
	}
}

func TestRows(t *testing.T) {
	status := GlobalStatus{Units: map[UnitName]UnitStatus{
		"speech_synthesis": {Color: Green},
		"jarvis":           {Color: Red, Impact: []string{"Everything"}},
		"sync":             {Color: Green},
		"api":              {Color: Red},
	}}

	rows := status.Rows()
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row.Name)
	}
	assert.Equal(t, []string{"API", "Sync", "Jarvis", "Speech Synthesis"}, names)

	red := status.RedRows()
	assert.Len(t, red, 2)
	assert.Equal(t, "API", red[0].Name)
	assert.Equal(t, []string{"Everything"}, red[1].Impact)
}

func TestColor(t *testing.T) {
	assert.Equal(t, Red, Worse(Green, Red))
	assert.Equal(t, Red, Worse(Red, Yellow))
	assert.Equal(t, Yellow, Worse(Yellow, Green))
	assert.Equal(t, Yellow, Worse(Blue, Yellow))
	assert.Equal(t, "&#128308;", Red.Entity())
	assert.Equal(t, "&#128994;", Green.Entity())
	assert.Equal(t, "&#128309;", Blue.Entity())
	assert.Equal(t, "&#128993;", Yellow.Entity())
}
