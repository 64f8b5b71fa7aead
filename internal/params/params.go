// Package params defines the simulation parameter schema read from YAML,
// its defaults and the validation applied before anything is handed to
// TEM-simulator.
package params

import (
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultVoxelSizeNM     = 0.1
	DefaultVoltageKV       = 300.0
	DefaultMagnification   = 81000.0
	DefaultDetectorPixels  = 5760
	DefaultPixelSizeUM     = 5.0
	DefaultElectronDose    = 100.0
	DefaultQEfficiency     = 0.4
	DefaultSamples         = 1
	DefaultHoleDiameterNM  = 1200
	DefaultHoleThicknessNM = 100
)

// Config is the root of a simulation description. It is built once from a
// file, validated, rendered and then treated as read-only.
type Config struct {
	MolecularModel MolecularModel `yaml:"molecular_model"`
	SpecimenGrid   SpecimenGrid   `yaml:"specimen_grid_params"`
	Beam           Beam           `yaml:"beam_parameters"`
	Optics         Optics         `yaml:"optics_parameters"`
	Detector       Detector       `yaml:"detector_parameters"`
	CTF            *CTF           `yaml:"ctf_parameters,omitempty"`
	Geometry       Geometry       `yaml:"geometry_parameters"`
	Noise          *Noise         `yaml:"noise_parameters,omitempty"`
	Misc           Misc           `yaml:"miscellaneous"`
}

type MolecularModel struct {
	VoxelSizeNM  float64 `yaml:"voxel_size_nm"`
	ParticleName string  `yaml:"particle_name"`
	// ParticleMRCOut, when set, asks the simulator to write the particle
	// potential map (real and imaginary parts).
	ParticleMRCOut *string `yaml:"particle_mrcout,omitempty"`
}

type SpecimenGrid struct {
	HoleDiameterNM        int  `yaml:"hole_diameter_nm"`
	HoleThicknessCenterNM int  `yaml:"hole_thickness_center_nm"`
	HoleThicknessEdgeNM   int  `yaml:"hole_thickness_edge_nm"`
	ParticleSlicePad      *int `yaml:"particle_slice_pad,omitempty"`
}

type Beam struct {
	VoltageKV         float64 `yaml:"voltage_kv"`
	EnergySpreadV     float64 `yaml:"energy_spread_v"`
	ElectronDose      float64 `yaml:"electron_dose_e_per_nm2"`
	ElectronDoseStdev float64 `yaml:"electron_dose_std_e_per_nm2"`
}

type Optics struct {
	Magnification         float64  `yaml:"magnification"`
	SphericalAberrationMM float64  `yaml:"spherical_aberration_mm"`
	ChromaticAberrationMM float64  `yaml:"chromatic_aberration_mm"`
	ApertureDiameterUM    float64  `yaml:"aperture_diameter_um"`
	FocalLengthMM         float64  `yaml:"focal_length_mm"`
	ApertureAngleMRad     float64  `yaml:"aperture_angle_mrad"`
	DefocusUM             *float64 `yaml:"defocus_um,omitempty"`
	DefocusSystErrorUM    float64  `yaml:"defocus_syst_error_um"`
	DefocusNonsystErrorUM float64  `yaml:"defocus_nonsyst_error_um"`
	DefocusOut            *string  `yaml:"optics_defocusout,omitempty"`
}

type Detector struct {
	NX          int       `yaml:"detector_nx_px"`
	NY          int       `yaml:"detector_ny_px"`
	PixelSizeUM float64   `yaml:"detector_pixel_size_um"`
	Gain        float64   `yaml:"average_gain_count_per_electron"`
	Noise       Toggle    `yaml:"noise"`
	QEfficiency *float64  `yaml:"detector_q_efficiency,omitempty"`
	MTF         []float64 `yaml:"mtf_params,flow"`
}

// CTF replaces the constant nominal defocus with a per-image distribution.
type CTF struct {
	DistributionType       Distribution `yaml:"distribution_type"`
	DistributionParameters []float64    `yaml:"distribution_parameters,flow"`
}

type Geometry struct {
	NSamples int `yaml:"n_samples"`
}

type Noise struct {
	SignalToNoise   *float64 `yaml:"signal_to_noise,omitempty"`
	SignalToNoiseDB *float64 `yaml:"signal_to_noise_db,omitempty"`
}

type Misc struct {
	Seed *int64 `yaml:"seed,omitempty"`
}

// Toggle is the yes/no switch understood by TEM-simulator.
type Toggle string

const (
	Yes Toggle = "yes"
	No  Toggle = "no"
)

// UnmarshalYAML accepts yes/no as well as YAML booleans. Anything else is
// kept verbatim so validation can report it.
func (t *Toggle) UnmarshalYAML(n *yaml.Node) error {
	switch strings.ToLower(n.Value) {
	case "yes", "true", "on", "y":
		*t = Yes
	case "no", "false", "off", "n":
		*t = No
	default:
		*t = Toggle(n.Value)
	}
	return nil
}

func (t Toggle) Enabled() bool { return t == Yes }

// Distribution names a defocus distribution family.
type Distribution string

const (
	Gaussian Distribution = "gaussian"
	Uniform  Distribution = "uniform"
)

// Distributions lists the recognized distribution types in a stable order.
var Distributions = []Distribution{Gaussian, Uniform}

func (d Distribution) Known() bool {
	for _, k := range Distributions {
		if d == k {
			return true
		}
	}
	return false
}

// DefaultConfig returns a complete, valid configuration for a 300 kV
// microscope at 81000x with a noiseless detector.
func DefaultConfig() *Config {
	defocus := 1.0
	dqe := DefaultQEfficiency
	return &Config{
		MolecularModel: MolecularModel{
			VoxelSizeNM:  DefaultVoxelSizeNM,
			ParticleName: "particle",
		},
		SpecimenGrid: SpecimenGrid{
			HoleDiameterNM:        DefaultHoleDiameterNM,
			HoleThicknessCenterNM: DefaultHoleThicknessNM,
			HoleThicknessEdgeNM:   DefaultHoleThicknessNM,
		},
		Beam: Beam{
			VoltageKV:     DefaultVoltageKV,
			EnergySpreadV: 1.3,
			ElectronDose:  DefaultElectronDose,
		},
		Optics: Optics{
			Magnification:         DefaultMagnification,
			SphericalAberrationMM: 2.7,
			ChromaticAberrationMM: 2.7,
			ApertureDiameterUM:    50,
			FocalLengthMM:         3.5,
			ApertureAngleMRad:     0.1,
			DefocusUM:             &defocus,
			DefocusSystErrorUM:    0,
			DefocusNonsystErrorUM: 0.01,
		},
		Detector: Detector{
			NX:          DefaultDetectorPixels,
			NY:          4092,
			PixelSizeUM: DefaultPixelSizeUM,
			Gain:        2,
			Noise:       No,
			QEfficiency: &dqe,
			MTF:         []float64{0, 0, 1, 0, 0},
		},
		Geometry: Geometry{NSamples: DefaultSamples},
	}
}

// Clone returns a deep copy so overrides never touch a validated config.
func (c *Config) Clone() *Config {
	out := *c
	out.MolecularModel.ParticleMRCOut = clonePtr(c.MolecularModel.ParticleMRCOut)
	out.SpecimenGrid.ParticleSlicePad = clonePtr(c.SpecimenGrid.ParticleSlicePad)
	out.Optics.DefocusUM = clonePtr(c.Optics.DefocusUM)
	out.Optics.DefocusOut = clonePtr(c.Optics.DefocusOut)
	out.Detector.QEfficiency = clonePtr(c.Detector.QEfficiency)
	out.Detector.MTF = append([]float64(nil), c.Detector.MTF...)
	if c.CTF != nil {
		ctf := *c.CTF
		ctf.DistributionParameters = append([]float64(nil), c.CTF.DistributionParameters...)
		out.CTF = &ctf
	}
	if c.Noise != nil {
		out.Noise = &Noise{
			SignalToNoise:   clonePtr(c.Noise.SignalToNoise),
			SignalToNoiseDB: clonePtr(c.Noise.SignalToNoiseDB),
		}
	}
	out.Misc.Seed = clonePtr(c.Misc.Seed)
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Overrides are the per-run values that take precedence over the file.
type Overrides struct {
	Dose  *float64
	Noise *Toggle
	Seed  *int64
}

// WithOverrides returns a copy of cfg with the overrides applied. The copy
// must be validated again since the noise switch changes which rules apply.
func WithOverrides(cfg *Config, o Overrides) *Config {
	out := cfg.Clone()
	if o.Dose != nil {
		out.Beam.ElectronDose = *o.Dose
	}
	if o.Noise != nil {
		out.Detector.Noise = *o.Noise
	}
	if o.Seed != nil {
		out.Misc.Seed = clonePtr(o.Seed)
	}
	return out
}
