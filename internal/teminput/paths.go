package teminput

import (
	"math/rand"
	"path/filepath"
	"strings"
)

const keywordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Paths holds every file a single simulator run reads or writes.
type Paths struct {
	PDB         string `json:"pdb_file"`
	Params      string `json:"params_file"`
	Coordinates string `json:"crd_file"`
	Micrograph  string `json:"mrc_file"`
	Log         string `json:"log_file"`
	Input       string `json:"inp_file"`
	Defocus     string `json:"defocus_file"`
}

// NewPaths derives output names from the pdb file stem and a keyword. An
// empty outputDir means the pdb's directory; an empty keyword is replaced by
// "_" and five random characters drawn from rng.
func NewPaths(pdb, paramsFile, outputDir, keyword string, rng *rand.Rand) Paths {
	if outputDir == "" {
		outputDir = filepath.Dir(pdb)
	}
	if keyword == "" {
		keyword = RandomKeyword(rng)
	}

	stem := strings.TrimSuffix(filepath.Base(pdb), filepath.Ext(pdb))
	base := filepath.Join(outputDir, stem+keyword)

	return Paths{
		PDB:         filepath.Clean(pdb),
		Params:      paramsFile,
		Coordinates: base + ".txt",
		Micrograph:  base + ".mrc",
		Log:         base + ".log",
		Input:       base + ".inp",
		Defocus:     base + "_defocus.txt",
	}
}

func RandomKeyword(rng *rand.Rand) string {
	b := make([]byte, 6)
	b[0] = '_'
	for i := 1; i < len(b); i++ {
		b[i] = keywordAlphabet[rng.Intn(len(keywordAlphabet))]
	}
	return string(b)
}
