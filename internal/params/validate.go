package params

import (
	"fmt"
	"math"
	"strings"
)

// Dependency is a conditional rule: when the trigger field holds the trigger
// value, the dependent field must satisfy Check. When the trigger does not
// match, the dependent field is not consulted at all. Violations are reported
// as "<constraint> when <Trigger> = <TriggerValue>".
type Dependency struct {
	Trigger      string
	TriggerValue string
	Dependent    string
	// Current returns the trigger field's value as written in the file.
	Current func(*Config) string
	// Check returns the offending value and violated constraint, or ok.
	Check func(*Config) (value any, constraint string, ok bool)
}

func (d Dependency) applies(cfg *Config) bool {
	return d.Current(cfg) == d.TriggerValue
}

// Dependencies is evaluated in order after the per-field rules.
var Dependencies = []Dependency{
	{
		Trigger:      "detector_parameters.noise",
		TriggerValue: string(Yes),
		Dependent:    "detector_parameters.detector_q_efficiency",
		Current:      func(c *Config) string { return string(c.Detector.Noise) },
		Check: func(c *Config) (any, string, bool) {
			q := c.Detector.QEfficiency
			if q == nil {
				return nil, "is required", false
			}
			if !inRange(*q, 0.01, 1) {
				return *q, "must be in [0.01, 1]", false
			}
			return nil, "", true
		},
	},
	{
		Trigger:      "ctf_parameters",
		TriggerValue: "absent",
		Dependent:    "optics_parameters.defocus_um",
		Current: func(c *Config) string {
			if c.CTF == nil {
				return "absent"
			}
			return "present"
		},
		Check: func(c *Config) (any, string, bool) {
			d := c.Optics.DefocusUM
			if d == nil {
				return nil, "is required", false
			}
			if !finite(*d) {
				return *d, "must be a finite number", false
			}
			return nil, "", true
		},
	},
}

type checker struct {
	violations []Violation
}

func (c *checker) add(field string, value any, constraint string) {
	c.violations = append(c.violations, Violation{Field: field, Value: value, Constraint: constraint})
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// inRange is false for NaN, which compares false against any bound.
func inRange(v, lo, hi float64) bool { return v >= lo && v <= hi }

func (c *checker) between(field string, v, lo, hi float64) {
	if !inRange(v, lo, hi) {
		c.add(field, v, fmt.Sprintf("must be in [%g, %g]", lo, hi))
	}
}

func (c *checker) positive(field string, v float64) {
	if !finite(v) || v <= 0 {
		c.add(field, v, "must be a finite number > 0")
	}
}

func (c *checker) nonNegative(field string, v float64) {
	if !finite(v) || v < 0 {
		c.add(field, v, "must be a finite number >= 0")
	}
}

func (c *checker) allFinite(field string, vs []float64) {
	for _, v := range vs {
		if !finite(v) {
			c.add(field, vs, "entries must be finite numbers")
			return
		}
	}
}

// token checks a value written verbatim into the simulator input. Line
// breaks or '=' would start new keys or sections there.
func (c *checker) token(field, v string, allowSpace bool) {
	bad := "\n\r="
	if !allowSpace {
		bad += " \t"
	}
	if strings.ContainsAny(v, bad) {
		if allowSpace {
			c.add(field, v, "must not contain line breaks or '='")
		} else {
			c.add(field, v, "must be a single word without '='")
		}
	}
}

func (c *checker) atLeast(field string, v, min int) {
	if v < min {
		c.add(field, v, fmt.Sprintf("must be >= %d", min))
	}
}

// Validate checks every field and returns a *ValidationError listing all
// violations, or nil.
func Validate(cfg *Config) error {
	if err := validate(cfg); err != nil {
		return err
	}
	return nil
}

func validate(cfg *Config) *ValidationError {
	c := &checker{}

	m := cfg.MolecularModel
	c.between("molecular_model.voxel_size_nm", m.VoxelSizeNM, 0.1, 100)
	if m.ParticleName == "" {
		c.add("molecular_model.particle_name", nil, "must not be empty")
	} else {
		c.token("molecular_model.particle_name", m.ParticleName, false)
	}
	if m.ParticleMRCOut != nil {
		if *m.ParticleMRCOut == "" {
			c.add("molecular_model.particle_mrcout", nil, "must not be empty when set")
		} else {
			c.token("molecular_model.particle_mrcout", *m.ParticleMRCOut, true)
		}
	}

	g := cfg.SpecimenGrid
	c.positive("specimen_grid_params.hole_diameter_nm", float64(g.HoleDiameterNM))
	c.positive("specimen_grid_params.hole_thickness_center_nm", float64(g.HoleThicknessCenterNM))
	c.positive("specimen_grid_params.hole_thickness_edge_nm", float64(g.HoleThicknessEdgeNM))
	if g.ParticleSlicePad != nil {
		c.positive("specimen_grid_params.particle_slice_pad", float64(*g.ParticleSlicePad))
	}

	b := cfg.Beam
	c.between("beam_parameters.voltage_kv", b.VoltageKV, 1, 1e4)
	c.nonNegative("beam_parameters.energy_spread_v", b.EnergySpreadV)
	c.positive("beam_parameters.electron_dose_e_per_nm2", b.ElectronDose)
	c.between("beam_parameters.electron_dose_std_e_per_nm2", b.ElectronDoseStdev, 0, 1)

	o := cfg.Optics
	if !finite(o.Magnification) || o.Magnification <= 1 {
		c.add("optics_parameters.magnification", o.Magnification, "must be a finite number > 1")
	}
	c.nonNegative("optics_parameters.spherical_aberration_mm", o.SphericalAberrationMM)
	c.nonNegative("optics_parameters.chromatic_aberration_mm", o.ChromaticAberrationMM)
	c.positive("optics_parameters.aperture_diameter_um", o.ApertureDiameterUM)
	c.positive("optics_parameters.focal_length_mm", o.FocalLengthMM)
	c.nonNegative("optics_parameters.aperture_angle_mrad", o.ApertureAngleMRad)
	c.nonNegative("optics_parameters.defocus_syst_error_um", o.DefocusSystErrorUM)
	c.nonNegative("optics_parameters.defocus_nonsyst_error_um", o.DefocusNonsystErrorUM)
	if o.DefocusOut != nil {
		if *o.DefocusOut == "" {
			c.add("optics_parameters.optics_defocusout", nil, "must not be empty when set")
		} else {
			c.token("optics_parameters.optics_defocusout", *o.DefocusOut, true)
		}
	}

	d := cfg.Detector
	c.atLeast("detector_parameters.detector_nx_px", d.NX, 1)
	c.atLeast("detector_parameters.detector_ny_px", d.NY, 1)
	c.between("detector_parameters.detector_pixel_size_um", d.PixelSizeUM, 0.01, 1000)
	c.positive("detector_parameters.average_gain_count_per_electron", d.Gain)
	if d.Noise != Yes && d.Noise != No {
		c.add("detector_parameters.noise", string(d.Noise), "must be one of [yes no]")
	}
	if len(d.MTF) != 5 {
		c.add("detector_parameters.mtf_params", d.MTF, "must have exactly 5 entries")
	} else {
		c.allFinite("detector_parameters.mtf_params", d.MTF)
	}

	if cfg.CTF != nil {
		validateCTF(c, cfg.CTF)
	}

	c.atLeast("geometry_parameters.n_samples", cfg.Geometry.NSamples, 1)

	if n := cfg.Noise; n != nil {
		if n.SignalToNoise != nil {
			c.positive("noise_parameters.signal_to_noise", *n.SignalToNoise)
		}
		if n.SignalToNoiseDB != nil && !finite(*n.SignalToNoiseDB) {
			c.add("noise_parameters.signal_to_noise_db", *n.SignalToNoiseDB, "must be a finite number")
		}
	}

	for _, dep := range Dependencies {
		if !dep.applies(cfg) {
			continue
		}
		if value, constraint, ok := dep.Check(cfg); !ok {
			c.add(dep.Dependent, value, fmt.Sprintf("%s when %s = %s", constraint, dep.Trigger, dep.TriggerValue))
		}
	}

	if len(c.violations) == 0 {
		return nil
	}
	return &ValidationError{Violations: c.violations}
}

func validateCTF(c *checker, ctf *CTF) {
	if !ctf.DistributionType.Known() {
		c.add("ctf_parameters.distribution_type", string(ctf.DistributionType),
			fmt.Sprintf("must be one of %v", Distributions))
	}
	p := ctf.DistributionParameters
	if len(p) != 2 {
		c.add("ctf_parameters.distribution_parameters", p, "must be an ordered pair")
		return
	}
	if !finite(p[0]) || !finite(p[1]) {
		c.add("ctf_parameters.distribution_parameters", p, "entries must be finite numbers")
		return
	}
	switch ctf.DistributionType {
	case Gaussian:
		if p[1] < 0 {
			c.add("ctf_parameters.distribution_parameters", p, "gaussian standard deviation must be >= 0")
		}
	case Uniform:
		if p[0] > p[1] {
			c.add("ctf_parameters.distribution_parameters", p, "uniform bounds must satisfy low <= high")
		}
	}
}
