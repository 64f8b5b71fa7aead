package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/san-kum/temsim/internal/experiment"
	"github.com/san-kum/temsim/internal/logging"
	"github.com/san-kum/temsim/internal/params"
	"gopkg.in/yaml.v3"
)

// ErrInvalidScenario indicates a scenario file missing required entries.
var ErrInvalidScenario = errors.New("automation: invalid scenario")

// Scenario defines a scripted sequence of simulator runs sharing one
// parameter file and one particle.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Config      string         `yaml:"config"`
	PDB         string         `yaml:"pdb"`
	Coordinates string         `yaml:"coordinates"`
	OutputDir   string         `yaml:"output_dir"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is a single run; unset fields keep the parameter file value.
type ScenarioStep struct {
	Name    string         `yaml:"name"`
	Dose    *float64       `yaml:"dose"`
	Noise   *params.Toggle `yaml:"noise"`
	Seed    *int64         `yaml:"seed"`
	Keyword string         `yaml:"keyword"`
}

func (s ScenarioStep) overrides() params.Overrides {
	return params.Overrides{Dose: s.Dose, Noise: s.Noise, Seed: s.Seed}
}

// keyword keeps output names distinct between steps that share a seed.
func (s ScenarioStep) keyword(index int) string {
	if s.Keyword != "" {
		return s.Keyword
	}
	if s.Name != "" {
		return "_" + strings.ReplaceAll(s.Name, " ", "_")
	}
	return fmt.Sprintf("_step%02d", index+1)
}

// LoadScenario loads a scenario from a YAML file. Relative paths inside it
// are resolved against the scenario file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	for _, p := range []*string{&scenario.Config, &scenario.PDB, &scenario.Coordinates, &scenario.OutputDir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}

	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	return &scenario, nil
}

func (s *Scenario) Validate() error {
	var problems []string
	if s.Config == "" {
		problems = append(problems, "config is required")
	}
	if s.PDB == "" {
		problems = append(problems, "pdb is required")
	}
	if s.Coordinates == "" {
		problems = append(problems, "coordinates is required")
	}
	if len(s.Steps) == 0 {
		problems = append(problems, "at least one step is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidScenario, strings.Join(problems, "; "))
	}
	return nil
}

// Recorder persists a finished run and returns its id.
type Recorder interface {
	Save(result *experiment.Result) (string, error)
}

type StepResult struct {
	Step   string
	RunID  string
	Result *experiment.Result
}

// RunScenario executes all steps in order and stops at the first failure,
// returning the steps that completed. rec may be nil.
func RunScenario(ctx context.Context, scenario *Scenario, inv experiment.Invoker, rec Recorder, logger *slog.Logger) ([]StepResult, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		name := step.Name
		if name == "" {
			name = strconv.Itoa(i + 1)
		}
		logger.Info("running step", "scenario", scenario.Name, "step", name, "index", i+1, "total", len(scenario.Steps))

		cfg, err := params.LoadWithOverrides(scenario.Config, step.overrides())
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}

		exp, err := experiment.New(cfg, experiment.Inputs{
			PDB:         scenario.PDB,
			Coordinates: scenario.Coordinates,
			ParamsFile:  scenario.Config,
			OutputDir:   scenario.OutputDir,
			Keyword:     step.keyword(i),
		}, logger)
		if err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}

		result, err := exp.Run(ctx, inv)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		sr := StepResult{Step: name, Result: result}
		if rec != nil {
			id, err := rec.Save(result)
			if err != nil {
				return results, fmt.Errorf("step %d save: %w", i+1, err)
			}
			sr.RunID = id
		}
		results = append(results, sr)
	}

	return results, nil
}

// DoseSweep runs the same parameters across evenly spaced electron doses.
type DoseSweep struct {
	Min   float64
	Max   float64
	Count int
	Noise *params.Toggle
	Seed  *int64
}

// Steps expands the sweep into scenario steps named after their dose.
func (d DoseSweep) Steps() ([]ScenarioStep, error) {
	if d.Count < 1 {
		return nil, fmt.Errorf("%w: sweep needs at least one step", ErrInvalidScenario)
	}
	if !(d.Min > 0 && d.Max >= d.Min) || math.IsInf(d.Max, 0) {
		return nil, fmt.Errorf("%w: sweep range [%g, %g] must satisfy 0 < min <= max", ErrInvalidScenario, d.Min, d.Max)
	}

	steps := make([]ScenarioStep, d.Count)
	for i := range steps {
		dose := d.Min
		if d.Count > 1 {
			dose = d.Min + float64(i)*(d.Max-d.Min)/float64(d.Count-1)
		}
		steps[i] = ScenarioStep{
			Name:  "dose" + strconv.FormatFloat(dose, 'f', -1, 64),
			Dose:  &dose,
			Noise: d.Noise,
			Seed:  d.Seed,
		}
	}
	return steps, nil
}
