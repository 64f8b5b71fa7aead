package viz

import (
	"strings"
	"testing"
	"time"

	"github.com/san-kum/temsim/internal/params"
	"github.com/san-kum/temsim/internal/storage"
	"github.com/san-kum/temsim/internal/teminput"
)

func TestRenderViolations(t *testing.T) {
	if out := RenderViolations(nil); !strings.Contains(out, "parameters valid") {
		t.Errorf("unexpected output for nil: %q", out)
	}

	verr := &params.ValidationError{Violations: []params.Violation{
		{Field: "molecular_model.voxel_size_nm", Value: 1000.0, Constraint: "must be in [0.01, 10]"},
		{Field: "geometry_parameters", Constraint: "required group is missing"},
	}}
	out := RenderViolations(verr)

	for _, want := range []string{"2 invalid parameter(s)", "molecular_model.voxel_size_nm", "= 1000", "must be in [0.01, 10]", "geometry_parameters: required group is missing"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if lines := strings.Count(out, "\n"); lines != 2 {
		t.Errorf("expected 3 lines, got %d:\n%s", lines+1, out)
	}
}

func TestRunSummary(t *testing.T) {
	meta := &storage.RunMetadata{
		ID:          "toy_1",
		Particle:    "toy",
		Timestamp:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Seed:        99,
		VoltageKV:   300,
		Dose:        62.5,
		Noise:       params.Yes,
		NSamples:    4,
		ElapsedSecs: 1.5,
		Paths:       teminput.Paths{Input: "/tmp/toy_A.inp"},
		Outputs:     []string{"/tmp/toy_A.mrc"},
		Particles:   12,
	}
	out := RunSummary(meta)

	for _, want := range []string{"toy_1", "2024-03-01 12:00:00", "300 kV", "62.5", "1.5s", "/tmp/toy_A.inp", "/tmp/toy_A.mrc"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestDefocusPlot(t *testing.T) {
	if DefocusPlot(nil) != "" {
		t.Error("expected empty plot for no values")
	}

	out := DefocusPlot([]float64{1, 2, 3})
	if !strings.Contains(out, "n=3 mean=2.0000") {
		t.Errorf("caption missing stats:\n%s", out)
	}

	if out := DefocusPlot([]float64{1.5}); !strings.Contains(out, "n=1 mean=1.5000 sd=0.0000") {
		t.Errorf("single value plot:\n%s", out)
	}
}

func TestInputSummary(t *testing.T) {
	input := "=== simulation ===\nrand_seed = 42\n" +
		"=== particle toy ===\nvoxel_size = 0.1\n" +
		"=== particleset ===\nparticle_type = toy\n" +
		"=== optics ===\ndefocus_nominal = 1.5\n"
	sections, err := teminput.ParseSections(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}

	out := InputSummary(sections)
	for _, want := range []string{"4 sections", "simulation.rand_seed", "42", "particle toy.voxel_size", "optics.defocus_nominal", "1.5"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "particle_type") {
		t.Errorf("particleset mistaken for particle section:\n%s", out)
	}

	if out := InputSummary(nil); !strings.Contains(out, "no recognized sections") {
		t.Errorf("unexpected output for empty input: %q", out)
	}
}
