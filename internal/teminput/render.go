// Package teminput reads and writes the file formats exchanged with the
// TEM-simulator binary: the sectioned .inp parameter file, the defocus list
// and the particle coordinate table.
package teminput

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/san-kum/temsim/internal/params"
)

// Render produces the .inp text for cfg. Output is a pure function of its
// arguments: sections and keys are always written in the same order and
// floats use the shortest exact representation.
func Render(cfg *params.Config, paths Paths) ([]byte, error) {
	nominal, err := nominalDefocus(cfg)
	if err != nil {
		return nil, err
	}

	w := &inpWriter{}

	w.section("simulation")
	w.kv("generate_micrographs", params.Yes)
	if cfg.Misc.Seed != nil {
		w.kv("rand_seed", *cfg.Misc.Seed)
	}
	w.kv("log_file", paths.Log)

	g := cfg.SpecimenGrid
	w.section("sample")
	w.kv("diameter", g.HoleDiameterNM)
	w.kv("thickness_edge", g.HoleThicknessEdgeNM)
	w.kv("thickness_center", g.HoleThicknessCenterNM)

	m := cfg.MolecularModel
	w.section("particle " + m.ParticleName)
	w.kv("source", "pdb")
	w.kv("voxel_size", m.VoxelSizeNM)
	w.kv("pdb_file_in", paths.PDB)
	if m.ParticleMRCOut != nil {
		re, im := MapOutputs(*m.ParticleMRCOut)
		w.kv("map_file_re_out", re)
		w.kv("map_file_im_out", im)
	}

	w.section("particleset")
	w.kv("particle_type", m.ParticleName)
	w.kv("particle_coords", "file")
	w.kv("coord_file_in", paths.Coordinates)

	w.section("geometry")
	w.kv("gen_tilt_data", params.Yes)
	w.kv("tilt_axis", 0)
	w.kv("ntilts", cfg.Geometry.NSamples)
	w.kv("theta_start", 0)
	w.kv("theta_incr", 0)
	w.kv("geom_errors", "none")

	b := cfg.Beam
	w.section("electronbeam")
	w.kv("acc_voltage", b.VoltageKV)
	w.kv("energy_spread", b.EnergySpreadV)
	w.kv("gen_dose", params.Yes)
	w.kv("dose_per_im", b.ElectronDose)
	w.kv("dose_sd", b.ElectronDoseStdev)

	o := cfg.Optics
	w.section("optics")
	w.kv("magnification", o.Magnification)
	w.kv("cs", o.SphericalAberrationMM)
	w.kv("cc", o.ChromaticAberrationMM)
	w.kv("aperture", o.ApertureDiameterUM)
	w.kv("focal_length", o.FocalLengthMM)
	w.kv("cond_ap_angle", o.ApertureAngleMRad)
	if cfg.CTF != nil {
		w.kv("gen_defocus", params.No)
	} else {
		w.kv("gen_defocus", params.Yes)
	}
	w.kv("defocus_nominal", nominal)
	w.kv("defocus_syst_error", o.DefocusSystErrorUM)
	w.kv("defocus_nonsyst_error", o.DefocusNonsystErrorUM)
	if o.DefocusOut != nil {
		w.kv("defocus_file_out", *o.DefocusOut)
	}
	if cfg.CTF != nil {
		w.kv("defocus_file_in", paths.Defocus)
	}

	d := cfg.Detector
	w.section("detector")
	w.kv("det_pix_x", d.NX)
	w.kv("det_pix_y", d.NY)
	w.kv("pixel_size", d.PixelSizeUM)
	w.kv("gain", d.Gain)
	w.kv("use_quantization", d.Noise)
	if d.QEfficiency != nil {
		w.kv("dqe", *d.QEfficiency)
	}
	for i, key := range mtfKeys {
		if i < len(d.MTF) {
			w.kv(key, d.MTF[i])
		}
	}
	w.kv("image_file_out", paths.Micrograph)

	if w.err != nil {
		return nil, w.err
	}
	return w.buf.Bytes(), nil
}

var mtfKeys = []string{"mtf_a", "mtf_b", "mtf_c", "mtf_alpha", "mtf_beta"}

// MapOutputs returns the real and imaginary potential map names derived from
// a particle_mrcout value.
func MapOutputs(mrcout string) (re, im string) {
	stem, _, _ := strings.Cut(mrcout, ".mrc")
	return stem + "_real.mrc", stem + "_imag.mrc"
}

// WriteInputFile writes rendered text to a .inp path.
func WriteInputFile(path string, data []byte) error {
	if err := checkExtension(path, ".inp"); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func nominalDefocus(cfg *params.Config) (float64, error) {
	if cfg.Optics.DefocusUM != nil {
		return *cfg.Optics.DefocusUM, nil
	}
	if cfg.CTF != nil && len(cfg.CTF.DistributionParameters) > 0 {
		return cfg.CTF.DistributionParameters[0], nil
	}
	return 0, ErrNoDefocus
}

// inpWriter keeps the first value that would break the line format.
type inpWriter struct {
	buf bytes.Buffer
	err error
}

func (w *inpWriter) section(name string) {
	w.check("section "+name, name)
	fmt.Fprintf(&w.buf, "=== %s ===\n", name)
}

func (w *inpWriter) kv(key string, value any) {
	v := formatValue(value)
	w.check(key, v)
	fmt.Fprintf(&w.buf, "%s = %s\n", key, v)
}

func (w *inpWriter) check(where, v string) {
	if w.err == nil && strings.ContainsAny(v, "\n\r") {
		w.err = fmt.Errorf("%w: %s value %q contains a line break", ErrMalformed, where, v)
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case params.Toggle:
		return string(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
