package feed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/core-tools/hsu-monitor/pkg/errors"
	"github.com/core-tools/hsu-monitor/pkg/health"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFeed(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		expected  []Unit
		expectErr bool
	}{
		{
			name: "scalar pids",
			yaml: "api: 111\nworker: 222\n",
			expected: []Unit{
				{Name: "api", Processes: []Process{{PID: 111, Impact: []string{}}}},
				{Name: "worker", Processes: []Process{{PID: 222, Impact: []string{}}}},
			},
		},
		{
			name: "pid to impact mapping keeps order",
			yaml: `
jarvis:
  111: ["Speech", "Automation"]
sync:
  333: "Uploads"
  222:
  444: []
`,
			expected: []Unit{
				{Name: "jarvis", Processes: []Process{{PID: 111, Impact: []string{"Speech", "Automation"}}}},
				{Name: "sync", Processes: []Process{
					{PID: 333, Impact: []string{"Uploads"}},
					{PID: 222, Impact: []string{}},
					{PID: 444, Impact: []string{}},
				}},
			},
		},
		{name: "empty document", yaml: "", expected: nil},
		{name: "null document", yaml: "~\n", expected: nil},
		{name: "list instead of mapping", yaml: "- 111\n", expectErr: true},
		{
			name:     "non numeric scalar pid",
			yaml:     "api: abc\n",
			expected: []Unit{{Name: "api", Processes: []Process{{PID: 0, Impact: []string{}}}}},
		},
		{
			name: "non numeric pid stays with its unit",
			yaml: "jarvis:\n  111: [Speech]\nsync:\n  abc: [Backups]\n  99999999999: Uploads\n  -4: []\n",
			expected: []Unit{
				{Name: "jarvis", Processes: []Process{{PID: 111, Impact: []string{"Speech"}}}},
				{Name: "sync", Processes: []Process{
					{PID: 0, Impact: []string{"Backups"}},
					{PID: 0, Impact: []string{"Uploads"}},
					{PID: 0, Impact: []string{}},
				}},
			},
		},
		{name: "non scalar pid", yaml: "api:\n  [1, 2]: []\n", expectErr: true},
		{name: "nested impacts", yaml: "api:\n  111: [[a]]\n", expectErr: true},
		{name: "duplicate unit", yaml: "api: 1\napi: 2\n", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			units, err := ParseFeed([]byte(tt.yaml))
			if tt.expectErr {
				assert.True(t, errors.IsValidationError(err), "expected validation error, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, units)
		})
	}
}

func TestLoadFeed(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFeed(filepath.Join(dir, "missing.yaml"))
	assert.True(t, errors.IsNotFoundError(err))

	path := filepath.Join(dir, "processes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jarvis:\n  111: [Speech]\n"), 0644))

	units, err := LoadFeed(path)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, health.UnitName("jarvis"), units[0].Name)

	require.NoError(t, os.WriteFile(path, []byte("jarvis: [unclosed"), 0644))
	_, err = LoadFeed(path)
	assert.True(t, errors.IsValidationError(err))
}

func TestUnitTargets(t *testing.T) {
	unit := Unit{Name: "sync", Processes: []Process{
		{PID: 10, Impact: []string{"Backups"}},
		{PID: 20, Impact: []string{}},
	}}

	targets := unit.Targets()
	assert.Equal(t, []health.Target{
		{Unit: "sync", PID: 10, Impact: []string{"Backups"}, Index: 0},
		{Unit: "sync", PID: 20, Impact: []string{}, Index: 1},
	}, targets)
}
