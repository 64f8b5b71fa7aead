package teminput

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrFileType indicates a path whose extension the simulator does not expect.
	ErrFileType = errors.New("teminput: unexpected file extension")

	// ErrMalformed indicates a simulator file that could not be parsed.
	ErrMalformed = errors.New("teminput: malformed file")

	// ErrNoDefocus indicates a config with neither a nominal defocus nor a
	// defocus distribution.
	ErrNoDefocus = errors.New("teminput: no defocus source configured")
)

func checkExtension(path string, allowed ...string) error {
	ext := strings.ToLower(filepath.Ext(path))
	for _, a := range allowed {
		if ext == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be of type %v", ErrFileType, path, allowed)
}
