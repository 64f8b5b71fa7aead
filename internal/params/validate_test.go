package params_test

import (
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/temsim/internal/params"
)

func ptr[T any](v T) *T { return &v }

func violations(err error) *params.ValidationError {
	var verr *params.ValidationError
	Expect(errors.As(err, &verr)).To(BeTrue(), "expected *ValidationError, got %v", err)
	return verr
}

var _ = Describe("Validate", func() {
	var cfg *params.Config

	BeforeEach(func() {
		cfg = params.DefaultConfig()
	})

	It("accepts the default config", func() {
		Expect(params.Validate(cfg)).To(Succeed())
	})

	DescribeTable("voxel size range",
		func(voxel float64, valid bool) {
			cfg.MolecularModel.VoxelSizeNM = voxel
			err := params.Validate(cfg)
			if valid {
				Expect(err).NotTo(HaveOccurred())
				return
			}
			Expect(err).To(MatchError(params.ErrInvalidConfig))
			Expect(err.Error()).To(ContainSubstring("voxel_size_nm"))
		},
		Entry("lower bound", 0.1, true),
		Entry("upper bound", 100.0, true),
		Entry("below range", 0.05, false),
		Entry("above range", 100.5, false),
	)

	Context("detector quantum efficiency", func() {
		BeforeEach(func() {
			cfg.Detector.QEfficiency = ptr(5.0)
		})

		It("is ignored when noise is off", func() {
			cfg.Detector.Noise = params.No
			Expect(params.Validate(cfg)).To(Succeed())
		})

		It("is checked when noise is on", func() {
			cfg.Detector.Noise = params.Yes
			verr := violations(params.Validate(cfg))
			Expect(verr.Fields()).To(ConsistOf("detector_parameters.detector_q_efficiency"))
		})

		It("is required when noise is on", func() {
			cfg.Detector.Noise = params.Yes
			cfg.Detector.QEfficiency = nil
			verr := violations(params.Validate(cfg))
			Expect(verr.Violations[0].Constraint).To(ContainSubstring("required"))
		})
	})

	It("reports every violation at once", func() {
		cfg.MolecularModel.VoxelSizeNM = 0
		cfg.Beam.VoltageKV = 0
		cfg.Beam.ElectronDoseStdev = 2
		cfg.Optics.Magnification = 1
		cfg.Detector.PixelSizeUM = 5000
		cfg.Geometry.NSamples = 0

		verr := violations(params.Validate(cfg))
		Expect(verr.Fields()).To(Equal([]string{
			"molecular_model.voxel_size_nm",
			"beam_parameters.voltage_kv",
			"beam_parameters.electron_dose_std_e_per_nm2",
			"optics_parameters.magnification",
			"detector_parameters.detector_pixel_size_um",
			"geometry_parameters.n_samples",
		}))
		Expect(verr.Error()).To(HavePrefix("params: 6 violations"))
	})

	It("rejects an unknown noise switch", func() {
		cfg.Detector.Noise = "sometimes"
		verr := violations(params.Validate(cfg))
		Expect(verr.Violations[0].Value).To(Equal("sometimes"))
	})

	It("requires five mtf parameters", func() {
		cfg.Detector.MTF = []float64{1, 2}
		verr := violations(params.Validate(cfg))
		Expect(verr.Fields()).To(ConsistOf("detector_parameters.mtf_params"))
	})

	Context("ctf distribution", func() {
		It("rejects an unrecognized type", func() {
			cfg.CTF = &params.CTF{DistributionType: "lorentzian", DistributionParameters: []float64{1, 0.1}}
			verr := violations(params.Validate(cfg))
			Expect(verr.Fields()).To(ConsistOf("ctf_parameters.distribution_type"))
		})

		It("requires an ordered pair", func() {
			cfg.CTF = &params.CTF{DistributionType: params.Gaussian, DistributionParameters: []float64{1}}
			verr := violations(params.Validate(cfg))
			Expect(verr.Fields()).To(ConsistOf("ctf_parameters.distribution_parameters"))
		})

		It("rejects inverted uniform bounds", func() {
			cfg.CTF = &params.CTF{DistributionType: params.Uniform, DistributionParameters: []float64{2, 1}}
			Expect(params.Validate(cfg)).To(MatchError(params.ErrInvalidConfig))
		})

		It("makes nominal defocus optional", func() {
			cfg.CTF = &params.CTF{DistributionType: params.Gaussian, DistributionParameters: []float64{1.5, 0.2}}
			cfg.Optics.DefocusUM = nil
			Expect(params.Validate(cfg)).To(Succeed())
		})
	})

	It("requires nominal defocus without a ctf distribution", func() {
		cfg.Optics.DefocusUM = nil
		verr := violations(params.Validate(cfg))
		Expect(verr.Fields()).To(ConsistOf("optics_parameters.defocus_um"))
	})

	It("names the trigger in conditional violations", func() {
		cfg.Detector.Noise = params.Yes
		cfg.Detector.QEfficiency = ptr(5.0)
		verr := violations(params.Validate(cfg))
		Expect(verr.Violations[0].Constraint).To(Equal("must be in [0.01, 1] when detector_parameters.noise = yes"))
	})

	DescribeTable("non-finite values",
		func(field string, set func(*params.Config, float64)) {
			for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
				cfg = params.DefaultConfig()
				set(cfg, v)
				verr := violations(params.Validate(cfg))
				Expect(verr.Fields()).To(ContainElement(field), "value %v", v)
			}
		},
		Entry("molecular_model.voxel_size_nm", "molecular_model.voxel_size_nm", func(c *params.Config, v float64) { c.MolecularModel.VoxelSizeNM = v }),
		Entry("beam_parameters.voltage_kv", "beam_parameters.voltage_kv", func(c *params.Config, v float64) { c.Beam.VoltageKV = v }),
		Entry("beam_parameters.energy_spread_v", "beam_parameters.energy_spread_v", func(c *params.Config, v float64) { c.Beam.EnergySpreadV = v }),
		Entry("beam_parameters.electron_dose_e_per_nm2", "beam_parameters.electron_dose_e_per_nm2", func(c *params.Config, v float64) { c.Beam.ElectronDose = v }),
		Entry("beam_parameters.electron_dose_std_e_per_nm2", "beam_parameters.electron_dose_std_e_per_nm2", func(c *params.Config, v float64) { c.Beam.ElectronDoseStdev = v }),
		Entry("optics_parameters.magnification", "optics_parameters.magnification", func(c *params.Config, v float64) { c.Optics.Magnification = v }),
		Entry("optics_parameters.spherical_aberration_mm", "optics_parameters.spherical_aberration_mm", func(c *params.Config, v float64) { c.Optics.SphericalAberrationMM = v }),
		Entry("optics_parameters.chromatic_aberration_mm", "optics_parameters.chromatic_aberration_mm", func(c *params.Config, v float64) { c.Optics.ChromaticAberrationMM = v }),
		Entry("optics_parameters.aperture_diameter_um", "optics_parameters.aperture_diameter_um", func(c *params.Config, v float64) { c.Optics.ApertureDiameterUM = v }),
		Entry("optics_parameters.focal_length_mm", "optics_parameters.focal_length_mm", func(c *params.Config, v float64) { c.Optics.FocalLengthMM = v }),
		Entry("optics_parameters.aperture_angle_mrad", "optics_parameters.aperture_angle_mrad", func(c *params.Config, v float64) { c.Optics.ApertureAngleMRad = v }),
		Entry("optics_parameters.defocus_um", "optics_parameters.defocus_um", func(c *params.Config, v float64) { c.Optics.DefocusUM = &v }),
		Entry("optics_parameters.defocus_syst_error_um", "optics_parameters.defocus_syst_error_um", func(c *params.Config, v float64) { c.Optics.DefocusSystErrorUM = v }),
		Entry("optics_parameters.defocus_nonsyst_error_um", "optics_parameters.defocus_nonsyst_error_um", func(c *params.Config, v float64) { c.Optics.DefocusNonsystErrorUM = v }),
		Entry("detector_parameters.detector_pixel_size_um", "detector_parameters.detector_pixel_size_um", func(c *params.Config, v float64) { c.Detector.PixelSizeUM = v }),
		Entry("detector_parameters.average_gain_count_per_electron", "detector_parameters.average_gain_count_per_electron", func(c *params.Config, v float64) { c.Detector.Gain = v }),
		Entry("detector_parameters.mtf_params", "detector_parameters.mtf_params", func(c *params.Config, v float64) { c.Detector.MTF[2] = v }),
		Entry("detector_parameters.detector_q_efficiency", "detector_parameters.detector_q_efficiency", func(c *params.Config, v float64) {
			c.Detector.Noise = params.Yes
			c.Detector.QEfficiency = &v
		}),
		Entry("ctf_parameters.distribution_parameters", "ctf_parameters.distribution_parameters", func(c *params.Config, v float64) {
			c.CTF = &params.CTF{DistributionType: params.Gaussian, DistributionParameters: []float64{v, 0.1}}
		}),
		Entry("noise_parameters.signal_to_noise", "noise_parameters.signal_to_noise", func(c *params.Config, v float64) {
			c.Noise = &params.Noise{SignalToNoise: &v}
		}),
	)

	DescribeTable("values written verbatim into the simulator input",
		func(field string, set func(*params.Config, string), value string, valid bool) {
			set(cfg, value)
			err := params.Validate(cfg)
			if valid {
				Expect(err).NotTo(HaveOccurred())
				return
			}
			Expect(violations(err).Fields()).To(ConsistOf(field))
		},
		Entry("plain particle name", "molecular_model.particle_name",
			func(c *params.Config, v string) { c.MolecularModel.ParticleName = v }, "4v6x", true),
		Entry("particle name with a section header", "molecular_model.particle_name",
			func(c *params.Config, v string) { c.MolecularModel.ParticleName = v }, "p ===\ngenerate_micrographs = no\n=== x", false),
		Entry("particle name with a space", "molecular_model.particle_name",
			func(c *params.Config, v string) { c.MolecularModel.ParticleName = v }, "apo ferritin", false),
		Entry("map output with a space", "molecular_model.particle_mrcout",
			func(c *params.Config, v string) { c.MolecularModel.ParticleMRCOut = &v }, "my maps/toy.mrc", true),
		Entry("map output with a line break", "molecular_model.particle_mrcout",
			func(c *params.Config, v string) { c.MolecularModel.ParticleMRCOut = &v }, "toy.mrc\ndose_per_im = 1", false),
		Entry("defocus output with '='", "optics_parameters.optics_defocusout",
			func(c *params.Config, v string) { c.Optics.DefocusOut = &v }, "a=b.txt", false),
	)
})

var _ = Describe("WithOverrides", func() {
	It("applies dose and noise to a copy", func() {
		cfg := params.DefaultConfig()
		noise := params.Yes
		out := params.WithOverrides(cfg, params.Overrides{Dose: ptr(20.0), Noise: &noise, Seed: ptr(int64(7))})

		Expect(out.Beam.ElectronDose).To(Equal(20.0))
		Expect(out.Detector.Noise).To(Equal(params.Yes))
		Expect(*out.Misc.Seed).To(Equal(int64(7)))
		Expect(cfg.Beam.ElectronDose).To(Equal(params.DefaultElectronDose))
		Expect(cfg.Misc.Seed).To(BeNil())
	})

	It("does not share slices with the source", func() {
		cfg := params.DefaultConfig()
		out := params.WithOverrides(cfg, params.Overrides{})
		out.Detector.MTF[0] = 42
		Expect(cfg.Detector.MTF[0]).To(Equal(0.0))
	})
})

var _ = Describe("Presets", func() {
	It("produces valid configs", func() {
		for _, name := range params.ListPresets() {
			Expect(params.Validate(params.GetPreset(name))).To(Succeed(), name)
		}
	})

	It("returns nil for an unknown preset", func() {
		Expect(params.GetPreset("nonexistent")).To(BeNil())
	})
})
