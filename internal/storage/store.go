package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/san-kum/temsim/internal/experiment"
	"github.com/san-kum/temsim/internal/params"
	"github.com/san-kum/temsim/internal/teminput"
	"gopkg.in/yaml.v3"
)

const (
	metadataFile = "metadata.json"
	inputFile    = "input.inp"
	configFile   = "config.yaml"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// RunMetadata is everything needed to find and reproduce a run.
type RunMetadata struct {
	ID          string         `json:"id"`
	Particle    string         `json:"particle"`
	Timestamp   time.Time      `json:"timestamp"`
	Seed        int64          `json:"seed"`
	VoltageKV   float64        `json:"voltage_kv"`
	Dose        float64        `json:"electron_dose_e_per_nm2"`
	Noise       params.Toggle  `json:"noise"`
	NSamples    int            `json:"n_samples"`
	ElapsedSecs float64        `json:"elapsed_seconds"`
	Paths       teminput.Paths `json:"paths"`
	Outputs     []string       `json:"outputs"`
	Defocus     []float64      `json:"defocus,omitempty"`
	Particles   int            `json:"particles"`
}

// Save records a finished run under a new id and returns the id. The
// rendered input and the resolved config are stored alongside the metadata
// so the run can be repeated exactly.
func (s *Store) Save(result *experiment.Result) (string, error) {
	cfg := result.Config
	now := time.Now()
	runID, runDir, err := s.newRunDir(cfg.MolecularModel.ParticleName, now)
	if err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:          runID,
		Particle:    cfg.MolecularModel.ParticleName,
		Timestamp:   now,
		Seed:        result.Seed,
		VoltageKV:   cfg.Beam.VoltageKV,
		Dose:        cfg.Beam.ElectronDose,
		Noise:       cfg.Detector.Noise,
		NSamples:    cfg.Geometry.NSamples,
		ElapsedSecs: result.Elapsed.Seconds(),
		Paths:       result.Paths,
		Outputs:     result.Outputs,
		Defocus:     result.Defocus,
		Particles:   len(result.Rotations),
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	if err := os.WriteFile(filepath.Join(runDir, inputFile), result.Input, 0644); err != nil {
		return "", err
	}
	if err := params.Save(filepath.Join(runDir, configFile), cfg); err != nil {
		return "", err
	}

	return runID, nil
}

// newRunDir creates a fresh directory for a run. Ids collide only when two
// runs of one particle start in the same nanosecond; a counter breaks the tie.
func (s *Store) newRunDir(particle string, now time.Time) (string, string, error) {
	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return "", "", err
	}
	base := fmt.Sprintf("%s_%d", safeName(particle), now.UnixNano())
	runID := base
	for i := 1; ; i++ {
		runDir := filepath.Join(s.baseDir, runID)
		err := os.Mkdir(runDir, 0755)
		if err == nil {
			return runID, runDir, nil
		}
		if !os.IsExist(err) {
			return "", "", err
		}
		runID = fmt.Sprintf("%s_%d", base, i)
	}
}

// safeName keeps a run id to one path element inside the store.
func safeName(name string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	if out == "" {
		return "run"
	}
	return out
}

// List returns every readable run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// LoadConfig returns the validated config a run was made with.
func (s *Store) LoadConfig(runID string) (*params.Config, error) {
	return params.Load(filepath.Join(s.baseDir, runID, configFile))
}

// LoadInput returns the exact .inp text handed to the simulator.
func (s *Store) LoadInput(runID string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.baseDir, runID, inputFile))
}

// ExportJSON writes a run's metadata together with its config to w.
func (s *Store) ExportJSON(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(filepath.Join(s.baseDir, runID, configFile))
	if err != nil {
		return err
	}
	// Re-decode generically so the exported keys match the YAML file.
	var cfg map[string]any
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return err
	}

	data := struct {
		*RunMetadata
		Config map[string]any `json:"config"`
	}{meta, cfg}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
