package teminput

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

type Param struct {
	Key   string
	Value string
}

// Section is one "=== name ===" block of an .inp file.
type Section struct {
	Name   string
	Params []Param
}

func (s Section) Get(key string) (string, bool) {
	for _, p := range s.Params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// ParseSections reads .inp text back into its sections, preserving order.
func ParseSections(r io.Reader) ([]Section, error) {
	var sections []Section
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		if strings.HasPrefix(text, "===") && strings.HasSuffix(text, "===") {
			name := strings.TrimSpace(strings.Trim(text, "="))
			if name == "" {
				return nil, fmt.Errorf("%w: line %d: empty section name", ErrMalformed, line)
			}
			sections = append(sections, Section{Name: name})
			continue
		}

		key, value, ok := strings.Cut(text, "=")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: expected name = value", ErrMalformed, line)
		}
		if len(sections) == 0 {
			return nil, fmt.Errorf("%w: line %d: parameter outside a section", ErrMalformed, line)
		}
		cur := &sections[len(sections)-1]
		cur.Params = append(cur.Params, Param{Key: strings.TrimSpace(key), Value: strings.TrimSpace(value)})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return sections, nil
}

// FindSection returns the first section whose name is name or starts with
// name followed by a space (as in "particle <name>").
func FindSection(sections []Section, name string) (Section, bool) {
	for _, s := range sections {
		if s.Name == name || strings.HasPrefix(s.Name, name+" ") {
			return s, true
		}
	}
	return Section{}, false
}
