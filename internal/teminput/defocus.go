package teminput

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/san-kum/temsim/internal/params"
)

const fileHeader = "# File created by TEM-simulator, version 1.3."

// SampleDefocus draws n defocus values (um) from the configured
// distribution. Gaussian parameters are (mean, std); uniform parameters are
// (low, high).
func SampleDefocus(ctf *params.CTF, n int, rng *rand.Rand) ([]float64, error) {
	if ctf == nil || len(ctf.DistributionParameters) != 2 {
		return nil, fmt.Errorf("teminput: defocus distribution needs two parameters")
	}
	a, b := ctf.DistributionParameters[0], ctf.DistributionParameters[1]

	out := make([]float64, n)
	switch ctf.DistributionType {
	case params.Gaussian:
		for i := range out {
			out[i] = a + b*rng.NormFloat64()
		}
	case params.Uniform:
		for i := range out {
			out[i] = a + (b-a)*rng.Float64()
		}
	default:
		return nil, fmt.Errorf("teminput: unknown distribution %q", ctf.DistributionType)
	}
	return out, nil
}

// WriteDefocusFile writes values in the tabular layout TEM-simulator reads
// through defocus_file_in.
func WriteDefocusFile(path string, values []float64) error {
	if err := checkExtension(path, ".txt"); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, fileHeader)
	fmt.Fprintf(w, "%d 1\n", len(values))
	for _, v := range values {
		fmt.Fprintln(w, strconv.FormatFloat(v, 'f', -1, 64))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}

// ReadDefocusFile reads a file written by WriteDefocusFile or by the
// simulator's defocus_file_out.
func ReadDefocusFile(path string) ([]float64, error) {
	if err := checkExtension(path, ".txt"); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		values []float64
		count  = -1
		line   int
	)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if count < 0 {
			n, err := strconv.Atoi(fields[0])
			if err != nil {
				return nil, fmt.Errorf("%w: %s line %d: bad count %q", ErrMalformed, path, line, fields[0])
			}
			count = n
			continue
		}
		v, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrMalformed, path, line, err)
		}
		values = append(values, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if count >= 0 && count != len(values) {
		return nil, fmt.Errorf("%w: %s declares %d values, found %d", ErrMalformed, path, count, len(values))
	}
	return values, nil
}
