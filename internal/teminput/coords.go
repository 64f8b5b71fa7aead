package teminput

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// coordHeaderLines is the number of preamble lines TEM-simulator writes
// before the particle table.
const coordHeaderLines = 4

// ReadRotations returns the numeric rows of a particle coordinate file.
// Each row holds the position and the (phi, theta, psi) rotation angles of
// one particle.
func ReadRotations(path string) ([][]float64, error) {
	if err := checkExtension(path, ".txt"); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows [][]float64
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		if line <= coordHeaderLines {
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		row := make([]float64, len(fields))
		for i, s := range fields {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s line %d: %v", ErrMalformed, path, line, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}
