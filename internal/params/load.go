package params

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var allowedExtensions = []string{".yml", ".yaml"}

type groupKeys struct {
	group    string
	optional bool
	keys     []string
}

// requiredKeys lists, per group, the keys that have no default. Every other
// field falls back to its zero value or stays unset.
var requiredKeys = []groupKeys{
	{group: "molecular_model", keys: []string{"voxel_size_nm", "particle_name"}},
	{group: "specimen_grid_params", keys: []string{"hole_diameter_nm", "hole_thickness_center_nm", "hole_thickness_edge_nm"}},
	{group: "beam_parameters", keys: []string{"voltage_kv", "energy_spread_v", "electron_dose_e_per_nm2"}},
	{group: "optics_parameters", keys: []string{
		"magnification", "spherical_aberration_mm", "chromatic_aberration_mm", "aperture_diameter_um",
		"focal_length_mm", "aperture_angle_mrad", "defocus_syst_error_um", "defocus_nonsyst_error_um",
	}},
	{group: "detector_parameters", keys: []string{
		"detector_nx_px", "detector_ny_px", "detector_pixel_size_um", "average_gain_count_per_electron",
		"noise", "mtf_params",
	}},
	{group: "ctf_parameters", optional: true, keys: []string{"distribution_type", "distribution_parameters"}},
	{group: "geometry_parameters", keys: []string{"n_samples"}},
}

// Load reads, decodes and validates a parameter file.
func Load(path string) (*Config, error) {
	return LoadWithOverrides(path, Overrides{})
}

// LoadWithOverrides applies o after decoding and before validation, so an
// override can change which conditional rules apply.
func LoadWithOverrides(path string, o Overrides) (*Config, error) {
	if !hasAllowedExtension(path) {
		return nil, fmt.Errorf("%w: %s", ErrFileType, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parse(data, o)
}

// Parse decodes and validates a parameter document. Unknown keys are
// rejected. Missing required keys and range violations are reported together
// in a single *ValidationError.
func Parse(data []byte) (*Config, error) {
	return parse(data, Overrides{})
}

func parse(data []byte, o Overrides) (*Config, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("params: parse yaml: %w", err)
	}

	var violations []Violation

	// The decoder keeps going past type mismatches and unknown keys and
	// reports them together in one *yaml.TypeError.
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		var terr *yaml.TypeError
		if !errors.As(err, &terr) {
			return nil, fmt.Errorf("params: decode: %w", err)
		}
		violations = append(violations, decodeViolations(&root, terr)...)
	}
	cfg = WithOverrides(cfg, o)

	reported := make(map[string]bool)
	for _, v := range violations {
		reported[v.Field] = true
	}
	// A group or key already reported is not reported again by a later pass.
	seen := func(field string) bool {
		group, _, _ := strings.Cut(field, ".")
		return reported[field] || reported[group]
	}

	for _, v := range missingKeys(&root) {
		if !seen(v.Field) {
			violations = append(violations, v)
		}
	}
	for _, v := range violations {
		reported[v.Field] = true
	}
	if verr := validate(cfg); verr != nil {
		for _, v := range verr.Violations {
			if !seen(v.Field) {
				violations = append(violations, v)
			}
		}
	}
	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}
	return cfg, nil
}

// decodeViolations turns the decoder's "line N: ..." messages into
// violations on the dotted key found at that line.
func decodeViolations(root *yaml.Node, terr *yaml.TypeError) []Violation {
	fields := make(map[int]string)
	indexLines(root, "", fields)

	out := make([]Violation, 0, len(terr.Errors))
	for _, msg := range terr.Errors {
		line, detail := 0, msg
		if rest, ok := strings.CutPrefix(msg, "line "); ok {
			num, tail, found := strings.Cut(rest, ": ")
			if n, err := strconv.Atoi(num); err == nil && found {
				line, detail = n, tail
			}
		}

		field, ok := fields[line]
		if !ok {
			field = fmt.Sprintf("line %d", line)
		}
		constraint := "has the wrong type: " + detail
		if strings.Contains(detail, "not found in type") {
			constraint = "is not a known key"
		}
		out = append(out, Violation{Field: field, Constraint: constraint})
	}
	return out
}

// indexLines records the dotted path of every mapping key by the lines of
// the key and of its inline value. Deeper keys overwrite their parents.
func indexLines(n *yaml.Node, prefix string, fields map[int]string) {
	switch n.Kind {
	case yaml.DocumentNode:
		for _, c := range n.Content {
			indexLines(c, prefix, fields)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, value := n.Content[i], n.Content[i+1]
			path := key.Value
			if prefix != "" {
				path = prefix + "." + key.Value
			}
			fields[key.Line] = path
			if value.Line != key.Line {
				// Block values start on the next line; their own keys
				// claim those lines below.
				if value.Kind != yaml.MappingNode {
					fields[value.Line] = path
				}
			}
			indexLines(value, path, fields)
		}
	case yaml.SequenceNode:
		for _, c := range n.Content {
			if _, ok := fields[c.Line]; !ok && prefix != "" {
				fields[c.Line] = prefix
			}
			indexLines(c, prefix, fields)
		}
	}
}

// Save writes cfg as YAML that Load reads back to an equal config.
func Save(path string, cfg *Config) error {
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func Marshal(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("params: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func hasAllowedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range allowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func missingKeys(root *yaml.Node) []Violation {
	doc := root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}

	var out []Violation
	for _, gk := range requiredKeys {
		group := mappingValue(doc, gk.group)
		if group == nil {
			if !gk.optional {
				out = append(out, Violation{Field: gk.group, Constraint: "required group is missing"})
			}
			continue
		}
		for _, key := range gk.keys {
			if mappingValue(group, key) == nil {
				out = append(out, Violation{Field: gk.group + "." + key, Constraint: "is required"})
			}
		}
	}
	return out
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			v := n.Content[i+1]
			if v.Tag == "!!null" {
				return nil
			}
			return v
		}
	}
	return nil
}
