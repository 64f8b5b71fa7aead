// Package experiment runs one TEM simulation: it fixes the seed, writes the
// simulator input files, invokes the simulator and collects what it wrote.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/san-kum/temsim/internal/logging"
	"github.com/san-kum/temsim/internal/params"
	"github.com/san-kum/temsim/internal/teminput"
)

var (
	// ErrMissingInput indicates a pdb or coordinate file that does not exist.
	ErrMissingInput = errors.New("experiment: missing input file")
)

// Invoker runs the external simulator on an input file and fails when any
// expected output is absent afterwards.
type Invoker interface {
	Run(ctx context.Context, inputFile string, expected []string) error
}

// Inputs names the files around a run. OutputDir and Keyword may be empty;
// see teminput.NewPaths for the defaults. An empty Coordinates means the
// coordinate file already sits at the derived <stem><keyword>.txt path,
// which Prepare checks.
type Inputs struct {
	PDB         string
	Coordinates string
	ParamsFile  string
	OutputDir   string
	Keyword     string
}

type Result struct {
	Seed      int64
	Config    *params.Config
	Paths     teminput.Paths
	Input     []byte
	Outputs   []string
	Defocus   []float64
	Rotations [][]float64
	Elapsed   time.Duration
}

type Experiment struct {
	cfg        *params.Config
	paths      teminput.Paths
	seed       int64
	randSource *rand.Rand
	logger     *slog.Logger

	input    []byte
	defocus  []float64
	prepared bool
}

// New validates cfg and fixes the seed. When the config has none, a seed is
// drawn from the clock and stored in the experiment's own copy of the config
// so the rendered input and the run record agree.
func New(cfg *params.Config, in Inputs, logger *slog.Logger) (*Experiment, error) {
	if err := params.Validate(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}

	cfg = cfg.Clone()
	if cfg.Misc.Seed == nil {
		seed := rand.New(rand.NewSource(time.Now().UnixNano())).Int63()
		cfg.Misc.Seed = &seed
	}
	seed := *cfg.Misc.Seed
	randSource := rand.New(rand.NewSource(seed))

	paths := teminput.NewPaths(in.PDB, in.ParamsFile, in.OutputDir, in.Keyword, randSource)
	if in.Coordinates != "" {
		paths.Coordinates = in.Coordinates
	}

	return &Experiment{
		cfg:        cfg,
		paths:      paths,
		seed:       seed,
		randSource: randSource,
		logger:     logging.WithSeed(logger, seed),
	}, nil
}

func (e *Experiment) Seed() int64            { return e.seed }
func (e *Experiment) Paths() teminput.Paths  { return e.paths }
func (e *Experiment) Config() *params.Config { return e.cfg }

// Prepare checks the inputs and writes the defocus list (when a CTF
// distribution is configured) and the .inp file. It runs once; later calls
// are no-ops.
func (e *Experiment) Prepare() error {
	if e.prepared {
		return nil
	}

	for _, p := range []string{e.paths.PDB, e.paths.Coordinates} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("%w: %s", ErrMissingInput, p)
		}
	}
	if err := os.MkdirAll(filepath.Dir(e.paths.Input), 0755); err != nil {
		return err
	}

	if e.cfg.CTF != nil {
		values, err := e.SampleDefocus()
		if err != nil {
			return err
		}
		if err := teminput.WriteDefocusFile(e.paths.Defocus, values); err != nil {
			return fmt.Errorf("write defocus file: %w", err)
		}
		e.logger.Debug("wrote defocus distribution", "path", e.paths.Defocus, "samples", len(values))
	}

	input, err := teminput.Render(e.cfg, e.paths)
	if err != nil {
		return err
	}
	if err := teminput.WriteInputFile(e.paths.Input, input); err != nil {
		return fmt.Errorf("write input file: %w", err)
	}
	e.input = input
	e.prepared = true

	e.logger.Info("prepared simulator input", "input", e.paths.Input)
	return nil
}

// SampleDefocus draws one defocus value per tilt from the CTF distribution.
// The draw happens once per experiment and is what Prepare writes; without
// ctf_parameters it returns nil.
func (e *Experiment) SampleDefocus() ([]float64, error) {
	if e.cfg.CTF == nil || e.defocus != nil {
		return e.defocus, nil
	}
	values, err := teminput.SampleDefocus(e.cfg.CTF, e.cfg.Geometry.NSamples, e.randSource)
	if err != nil {
		return nil, err
	}
	e.defocus = values
	return values, nil
}

// ExpectedOutputs lists the files the simulator must write for this config.
func (e *Experiment) ExpectedOutputs() []string {
	out := []string{e.paths.Micrograph}
	if m := e.cfg.MolecularModel.ParticleMRCOut; m != nil {
		re, im := teminput.MapOutputs(*m)
		out = append(out, re, im)
	}
	if d := e.cfg.Optics.DefocusOut; d != nil {
		out = append(out, *d)
	}
	return out
}

// Run prepares the input if needed and invokes the simulator through inv.
func (e *Experiment) Run(ctx context.Context, inv Invoker) (*Result, error) {
	if err := e.Prepare(); err != nil {
		return nil, err
	}

	expected := e.ExpectedOutputs()
	start := time.Now()
	if err := inv.Run(ctx, e.paths.Input, expected); err != nil {
		return nil, fmt.Errorf("experiment: %w", err)
	}
	elapsed := time.Since(start)

	rotations, err := teminput.ReadRotations(e.paths.Coordinates)
	if err != nil {
		e.logger.Warn("could not read particle rotations", "path", e.paths.Coordinates, "err", err)
	}

	return &Result{
		Seed:      e.seed,
		Config:    e.cfg,
		Paths:     e.paths,
		Input:     e.input,
		Outputs:   expected,
		Defocus:   e.defocus,
		Rotations: rotations,
		Elapsed:   elapsed,
	}, nil
}
