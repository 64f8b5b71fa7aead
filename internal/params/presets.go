package params

import "sort"

// Preset overlays microscope-specific values on top of DefaultConfig.
type Preset struct {
	Description string
	Apply       func(*Config)
}

var Presets = map[string]Preset{
	"krios-300kv": {
		Description: "300 kV, 105000x, K3-sized detector",
		Apply: func(c *Config) {
			c.Beam.VoltageKV = 300
			c.Beam.EnergySpreadV = 0.8
			c.Optics.Magnification = 105000
			c.Optics.SphericalAberrationMM = 2.7
			c.Optics.ChromaticAberrationMM = 2.7
			c.Optics.ApertureDiameterUM = 100
			c.Detector.NX, c.Detector.NY = 5760, 4092
			c.Detector.PixelSizeUM = 5
		},
	},
	"talos-200kv": {
		Description: "200 kV, 81000x, Falcon-sized detector",
		Apply: func(c *Config) {
			c.Beam.VoltageKV = 200
			c.Beam.EnergySpreadV = 1.3
			c.Optics.Magnification = 81000
			c.Optics.SphericalAberrationMM = 2.7
			c.Optics.ChromaticAberrationMM = 2.7
			c.Optics.ApertureDiameterUM = 50
			c.Detector.NX, c.Detector.NY = 4096, 4096
			c.Detector.PixelSizeUM = 14
		},
	},
	"high-mag": {
		Description: "300 kV, 130000x, small detector for quick tests",
		Apply: func(c *Config) {
			c.Beam.VoltageKV = 300
			c.Optics.Magnification = 130000
			c.Detector.NX, c.Detector.NY = 512, 512
		},
	},
	"noisy": {
		Description: "default optics with quantized electron noise enabled",
		Apply: func(c *Config) {
			dqe := DefaultQEfficiency
			c.Detector.Noise = Yes
			c.Detector.QEfficiency = &dqe
		},
	},
}

// GetPreset returns DefaultConfig with the named preset applied, or nil.
func GetPreset(name string) *Config {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	p.Apply(cfg)
	return cfg
}

// ListPresets returns the preset names in sorted order.
func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
