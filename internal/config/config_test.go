package config

import (
	"os"
	"reflect"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"TEMSIM_BINARY", "TEMSIM_BINARY_ARGS", "TEMSIM_DATA_DIR", "TEMSIM_OUTPUT_DIR", "TEMSIM_LOG_LEVEL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	s, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if s.Binary != DefaultBinary {
		t.Errorf("expected binary %s, got %s", DefaultBinary, s.Binary)
	}
	if s.DataDir != DefaultDataDir {
		t.Errorf("expected data dir %s, got %s", DefaultDataDir, s.DataDir)
	}
	if s.LogLevel != DefaultLogLevel {
		t.Errorf("expected log level %s, got %s", DefaultLogLevel, s.LogLevel)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TEMSIM_BINARY", "/opt/tem/bin/TEM-simulator")
	t.Setenv("TEMSIM_BINARY_ARGS", "--quiet --threads=2")
	t.Setenv("TEMSIM_DATA_DIR", "/var/lib/temsim")
	t.Setenv("TEMSIM_LOG_LEVEL", "debug")

	s, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if s.Binary != "/opt/tem/bin/TEM-simulator" {
		t.Errorf("unexpected binary %s", s.Binary)
	}
	if want := []string{"--quiet", "--threads=2"}; !reflect.DeepEqual(s.BinaryArgs, want) {
		t.Errorf("expected args %v, got %v", want, s.BinaryArgs)
	}
	if s.DataDir != "/var/lib/temsim" || s.LogLevel != "debug" {
		t.Errorf("unexpected settings %+v", s)
	}
}
