package teminput

import (
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/san-kum/temsim/internal/params"
)

func TestNewPaths(t *testing.T) {
	p := NewPaths("data/4v6x.pdb", "cfg.yaml", "out", "_RUN01", nil)

	if p.Micrograph != filepath.Join("out", "4v6x_RUN01.mrc") {
		t.Errorf("unexpected micrograph path %s", p.Micrograph)
	}
	if p.Defocus != filepath.Join("out", "4v6x_RUN01_defocus.txt") {
		t.Errorf("unexpected defocus path %s", p.Defocus)
	}
	if p.Input != filepath.Join("out", "4v6x_RUN01.inp") {
		t.Errorf("unexpected input path %s", p.Input)
	}
}

func TestNewPaths_Defaults(t *testing.T) {
	a := NewPaths("data/4v6x.pdb", "", "", "", rand.New(rand.NewSource(5)))
	b := NewPaths("data/4v6x.pdb", "", "", "", rand.New(rand.NewSource(5)))

	if filepath.Dir(a.Log) != "data" {
		t.Errorf("expected outputs next to pdb, got %s", a.Log)
	}
	if a != b {
		t.Errorf("same seed produced different paths: %+v vs %+v", a, b)
	}

	kw := RandomKeyword(rand.New(rand.NewSource(5)))
	if len(kw) != 6 || kw[0] != '_' {
		t.Errorf("unexpected keyword %q", kw)
	}
}

func TestSampleDefocus(t *testing.T) {
	gauss := &params.CTF{DistributionType: params.Gaussian, DistributionParameters: []float64{1.5, 0.1}}

	a, err := SampleDefocus(gauss, 100, rand.New(rand.NewSource(1234)))
	if err != nil {
		t.Fatalf("sample failed: %v", err)
	}
	b, _ := SampleDefocus(gauss, 100, rand.New(rand.NewSource(1234)))
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed produced different draws")
	}

	mean := 0.0
	for _, v := range a {
		mean += v
	}
	mean /= float64(len(a))
	if math.Abs(mean-1.5) > 0.1 {
		t.Errorf("expected mean near 1.5, got %f", mean)
	}

	uniform := &params.CTF{DistributionType: params.Uniform, DistributionParameters: []float64{1, 2}}
	u, err := SampleDefocus(uniform, 50, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("sample failed: %v", err)
	}
	for _, v := range u {
		if v < 1 || v > 2 {
			t.Errorf("uniform draw %f outside [1, 2]", v)
		}
	}

	if _, err := SampleDefocus(&params.CTF{DistributionType: "cauchy", DistributionParameters: []float64{1, 1}}, 1, rand.New(rand.NewSource(1))); err == nil {
		t.Error("expected error for unknown distribution")
	}
}

func TestDefocusFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defocus.txt")
	values := []float64{1.25, 1.5, 2}

	if err := WriteDefocusFile(path, values); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	want := "# File created by TEM-simulator, version 1.3.\n3 1\n1.25\n1.5\n2\n"
	if string(data) != want {
		t.Errorf("unexpected file content:\n%s", data)
	}

	got, err := ReadDefocusFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !reflect.DeepEqual(got, values) {
		t.Errorf("expected %v, got %v", values, got)
	}
}

func TestDefocusFile_Errors(t *testing.T) {
	dir := t.TempDir()
	if err := WriteDefocusFile(filepath.Join(dir, "defocus.csv"), nil); !errors.Is(err, ErrFileType) {
		t.Errorf("expected ErrFileType, got %v", err)
	}

	short := filepath.Join(dir, "short.txt")
	os.WriteFile(short, []byte("3 1\n1.0\n"), 0644)
	if _, err := ReadDefocusFile(short); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestReadRotations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coords.txt")
	content := "# File created by TEM-simulator, version 1.3.\n" +
		"2 6\n" +
		"#            x             y             z           phi         theta           psi\n" +
		"#\n" +
		"0 0 0 10.5 20 30\n" +
		"\n" +
		"1 2 3 40 50 60.25\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	rows, err := ReadRotations(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	want := [][]float64{{0, 0, 0, 10.5, 20, 30}, {1, 2, 3, 40, 50, 60.25}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("expected %v, got %v", want, rows)
	}

	if _, err := ReadRotations(filepath.Join(t.TempDir(), "coords.crd")); !errors.Is(err, ErrFileType) {
		t.Errorf("expected ErrFileType, got %v", err)
	}
}
