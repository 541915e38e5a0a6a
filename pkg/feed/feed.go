package feed

import (
	"os"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-monitor/pkg/errors"
	"github.com/core-tools/hsu-monitor/pkg/health"

	"gopkg.in/yaml.v3"
)

// Process is one pid of a unit with the impacts of losing it, in configured order.
// A pid that is not a valid process id is kept as 0 so the unit reports it.
type Process struct {
	PID    int32
	Impact []string
}

// Unit is one configured unit as read from the feed.
type Unit struct {
	Name      health.UnitName
	Processes []Process
}

// Targets returns one classification target per pid of the unit.
func (u Unit) Targets() []health.Target {
	targets := make([]health.Target, 0, len(u.Processes))
	for i, p := range u.Processes {
		targets = append(targets, health.Target{
			Unit:   u.Name,
			PID:    p.PID,
			Impact: p.Impact,
			Index:  i,
		})
	}
	return targets
}

// LoadFeed reads the unit to pid mapping. A missing file is a not-found error
// so the caller can report maintenance.
//
// Accepted shapes per unit:
//
//	jarvis: 4242
//	sync:
//	  4343: ["Backups", "Uploads"]
//	  4344: "Downloads"
//	  4345:
//
// A pid that does not parse as a process id does not fail the feed; it yields a
// Process with PID 0, which classifies as an invalid process of its unit.
func LoadFeed(path string) ([]Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("feed file not found", err).WithContext("path", path)
		}
		return nil, errors.NewIOError("failed to read feed file", err).WithContext("path", path)
	}

	units, err := ParseFeed(data)
	if err != nil {
		return nil, errors.NewValidationError("failed to parse feed file", err).WithContext("path", path)
	}
	return units, nil
}

// ParseFeed parses feed YAML, keeping the order of units and pids.
func ParseFeed(data []byte) ([]Unit, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.NewValidationError("invalid feed YAML", err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, nil
	}

	doc := root.Content[0]
	if doc.Kind == yaml.ScalarNode && doc.Tag == "!!null" {
		return nil, nil
	}
	if doc.Kind != yaml.MappingNode {
		return nil, errors.NewValidationError("feed must be a mapping of unit names", nil).WithContext("line", doc.Line)
	}

	units := make([]Unit, 0, len(doc.Content)/2)
	seen := make(map[health.UnitName]bool, len(doc.Content)/2)
	for i := 0; i+1 < len(doc.Content); i += 2 {
		name := health.UnitName(doc.Content[i].Value)
		if name == "" {
			return nil, errors.NewValidationError("unit name cannot be empty", nil).WithContext("line", doc.Content[i].Line)
		}
		if seen[name] {
			return nil, errors.NewValidationError("duplicate unit", nil).WithContext("unit", string(name))
		}
		seen[name] = true

		processes, err := parseProcesses(doc.Content[i+1])
		if err != nil {
			return nil, errors.NewValidationError("invalid unit", err).WithContext("unit", string(name))
		}
		units = append(units, Unit{Name: name, Processes: processes})
	}
	return units, nil
}

func parseProcesses(node *yaml.Node) ([]Process, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		pid, err := parsePID(node)
		if err != nil {
			return nil, err
		}
		return []Process{{PID: pid, Impact: []string{}}}, nil

	case yaml.MappingNode:
		processes := make([]Process, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			pid, err := parsePID(node.Content[i])
			if err != nil {
				return nil, err
			}
			impact, err := parseImpact(node.Content[i+1])
			if err != nil {
				return nil, err
			}
			processes = append(processes, Process{PID: pid, Impact: impact})
		}
		return processes, nil
	}

	return nil, errors.NewValidationError("unit must be a pid or a mapping of pid to impacts", nil).WithContext("line", node.Line)
}

func parsePID(node *yaml.Node) (int32, error) {
	if node.Kind != yaml.ScalarNode {
		return 0, errors.NewValidationError("pid must be a scalar", nil).WithContext("line", node.Line)
	}
	pid, err := strconv.ParseInt(strings.TrimSpace(node.Value), 10, 32)
	if err != nil || pid <= 0 {
		return 0, nil
	}
	return int32(pid), nil
}

func parseImpact(node *yaml.Node) ([]string, error) {
	switch {
	case node.Kind == yaml.ScalarNode && node.Tag == "!!null":
		return []string{}, nil
	case node.Kind == yaml.ScalarNode:
		return []string{node.Value}, nil
	case node.Kind == yaml.SequenceNode:
		var impact []string
		if err := node.Decode(&impact); err != nil {
			return nil, errors.NewValidationError("impacts must be strings", err).WithContext("line", node.Line)
		}
		if impact == nil {
			impact = []string{}
		}
		return impact, nil
	}
	return nil, errors.NewValidationError("impacts must be a string or a list of strings", nil).WithContext("line", node.Line)
}
