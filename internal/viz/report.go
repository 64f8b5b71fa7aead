package viz

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/temsim/internal/params"
	"github.com/san-kum/temsim/internal/storage"
	"github.com/san-kum/temsim/internal/teminput"
)

// RenderViolations lists each violation on its own line under a failure
// header. A nil error renders a success line.
func RenderViolations(verr *params.ValidationError) string {
	if verr == nil || len(verr.Violations) == 0 {
		return StatusOK.Render("✓ parameters valid")
	}

	var b strings.Builder
	b.WriteString(StatusFail.Render(fmt.Sprintf("✗ %d invalid parameter(s)", len(verr.Violations))))
	for _, v := range verr.Violations {
		b.WriteString("\n  ")
		b.WriteString(FieldName.Render(v.Field))
		if v.Value != nil {
			b.WriteString(Subtle.Render(fmt.Sprintf(" = %v", v.Value)))
		}
		b.WriteString(": ")
		b.WriteString(v.Constraint)
	}
	return b.String()
}

// RunSummary renders the stored record of a run.
func RunSummary(meta *storage.RunMetadata) string {
	pairs := [][2]string{
		{"run id", meta.ID},
		{"particle", meta.Particle},
		{"time", meta.Timestamp.Format("2006-01-02 15:04:05")},
		{"seed", strconv.FormatInt(meta.Seed, 10)},
		{"voltage", formatFloat(meta.VoltageKV) + " kV"},
		{"dose", formatFloat(meta.Dose) + " e/nm²"},
		{"noise", string(meta.Noise)},
		{"samples", strconv.Itoa(meta.NSamples)},
		{"particles", strconv.Itoa(meta.Particles)},
		{"elapsed", (time.Duration(meta.ElapsedSecs * float64(time.Second))).Round(time.Millisecond).String()},
		{"input", meta.Paths.Input},
	}

	content := metricLines(pairs)
	if len(meta.Outputs) > 0 {
		content += "\n\n" + Subtle.Render("outputs")
		for _, o := range meta.Outputs {
			content += "\n  " + o
		}
	}
	return BoxWithTitle("TEM simulation", content)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// inputHighlights are the simulator keys worth showing per section.
var inputHighlights = []struct {
	section string
	keys    []string
}{
	{"simulation", []string{"rand_seed"}},
	{"particle", []string{"voxel_size", "pdb_file_in"}},
	{"electronbeam", []string{"acc_voltage", "dose_per_im"}},
	{"optics", []string{"magnification", "gen_defocus", "defocus_nominal"}},
	{"detector", []string{"use_quantization", "image_file_out"}},
}

// InputSummary renders the key settings of a parsed .inp file, as the
// simulator will read them.
func InputSummary(sections []teminput.Section) string {
	var pairs [][2]string
	for _, h := range inputHighlights {
		s, ok := teminput.FindSection(sections, h.section)
		if !ok {
			continue
		}
		for _, key := range h.keys {
			if v, ok := s.Get(key); ok {
				pairs = append(pairs, [2]string{s.Name + "." + key, v})
			}
		}
	}
	if len(pairs) == 0 {
		return Subtle.Render("input file has no recognized sections")
	}
	return BoxWithTitle(fmt.Sprintf("simulator input (%d sections)", len(sections)), metricLines(pairs))
}
