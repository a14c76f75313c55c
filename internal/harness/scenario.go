package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is one conformance test: a patch, a drive schedule and the
// assertions the run must satisfy.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Patch is the path of the patch file, relative to the scenario.
	Patch string `yaml:"patch"`

	// DT overrides the patch's step length when non-zero.
	DT float64 `yaml:"dt,omitempty"`

	// Ticks is how many ticks to run.
	Ticks int `yaml:"ticks"`

	// RunID fixes the run id. Defaults to "test-run".
	RunID string `yaml:"run_id,omitempty"`

	// Inject lists one-tick stimuli.
	Inject []InjectStep `yaml:"inject,omitempty"`

	// Probes are the node.port outputs copied into the trace, in this
	// order. Empty means every output of every node, by id.
	Probes []string `yaml:"probes,omitempty"`

	Assertions []Assertion `yaml:"assertions"`

	// Dir is the directory the scenario was loaded from.
	Dir string `yaml:"-"`
}

// InjectStep adds Value to an input port for the tick after At ticks
// have completed.
type InjectStep struct {
	At    int64   `yaml:"at"`
	Port  string  `yaml:"port"`
	Value float64 `yaml:"value"`
}

// Assertion checks one property of a run. Which fields apply depends on
// Type.
type Assertion struct {
	Type string `yaml:"type"`

	// Port is node.port (port_value, final_value, series, bounded,
	// sign_alternates, history_len).
	Port string `yaml:"port,omitempty"`

	// Node is a node name (degraded_count).
	Node string `yaml:"node,omitempty"`

	// Tick is the tick a port_value is read after.
	Tick int64 `yaml:"tick,omitempty"`

	Expect    *float64  `yaml:"expect,omitempty"`
	Values    []float64 `yaml:"values,omitempty"`
	Tolerance float64   `yaml:"tolerance,omitempty"`

	// Count is the expected degraded_count or history_len.
	Count *int `yaml:"count,omitempty"`

	// Max bounds |value| (bounded).
	Max *float64 `yaml:"max,omitempty"`

	// From is the first tick checked by sign_alternates. Defaults to 1.
	From int64 `yaml:"from,omitempty"`
}

// Assertion types.
const (
	AssertPortValue      = "port_value"
	AssertFinalValue     = "final_value"
	AssertSeries         = "series"
	AssertDegradedCount  = "degraded_count"
	AssertBounded        = "bounded"
	AssertSignAlternates = "sign_alternates"
	AssertHistoryLen     = "history_len"
	AssertReplay         = "replay"
)

// LoadScenario reads a scenario YAML file. Unknown fields are rejected so
// typos such as "assertion:" fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	scenario.Dir = filepath.Dir(path)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every .yaml and .yml scenario in dir, sorted by
// file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	scenarios := make([]*Scenario, 0, len(files))
	for _, f := range files {
		s, err := LoadScenario(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(f), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// PatchPath returns the patch path resolved against the scenario's
// directory.
func (s *Scenario) PatchPath() string {
	if filepath.IsAbs(s.Patch) || s.Dir == "" {
		return s.Patch
	}
	return filepath.Join(s.Dir, s.Patch)
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Patch == "" {
		return fmt.Errorf("patch is required")
	}
	if _, err := os.Stat(s.PatchPath()); os.IsNotExist(err) {
		return fmt.Errorf("patch file not found: %s", s.PatchPath())
	}
	if s.Ticks <= 0 {
		return fmt.Errorf("ticks must be positive, got %d", s.Ticks)
	}
	if s.DT < 0 {
		return fmt.Errorf("dt must be positive, got %v", s.DT)
	}
	for i, step := range s.Inject {
		if !isPortRef(step.Port) {
			return fmt.Errorf("inject[%d]: port must be node.port, got %q", i, step.Port)
		}
		if step.At < 0 {
			return fmt.Errorf("inject[%d]: at must be non-negative", i)
		}
	}
	for i, p := range s.Probes {
		if !isPortRef(p) {
			return fmt.Errorf("probes[%d]: must be node.port, got %q", i, p)
		}
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	needPort := func() error {
		if !isPortRef(a.Port) {
			return fmt.Errorf("assertions[%d]: port must be node.port for %s, got %q", index, a.Type, a.Port)
		}
		return nil
	}

	switch a.Type {
	case AssertPortValue:
		if err := needPort(); err != nil {
			return err
		}
		if a.Tick <= 0 {
			return fmt.Errorf("assertions[%d]: tick must be positive for port_value", index)
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for port_value", index)
		}
	case AssertFinalValue:
		if err := needPort(); err != nil {
			return err
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for final_value", index)
		}
	case AssertSeries:
		if err := needPort(); err != nil {
			return err
		}
		if len(a.Values) == 0 {
			return fmt.Errorf("assertions[%d]: values list is required for series", index)
		}
	case AssertDegradedCount:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for degraded_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for degraded_count", index)
		}
	case AssertBounded:
		if err := needPort(); err != nil {
			return err
		}
		if a.Max == nil || *a.Max < 0 {
			return fmt.Errorf("assertions[%d]: max must be non-negative for bounded", index)
		}
	case AssertSignAlternates:
		if err := needPort(); err != nil {
			return err
		}
	case AssertHistoryLen:
		if err := needPort(); err != nil {
			return err
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for history_len", index)
		}
	case AssertReplay:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func isPortRef(ref string) bool {
	i := strings.LastIndexByte(ref, '.')
	return i > 0 && i < len(ref)-1
}

// splitPortRef splits "node.port" at the last dot, so node names may
// contain dots.
func splitPortRef(ref string) (string, string) {
	i := strings.LastIndexByte(ref, '.')
	if i < 0 {
		return ref, ""
	}
	return ref[:i], ref[i+1:]
}
