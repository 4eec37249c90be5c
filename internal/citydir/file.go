package citydir

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/schoolpulse/schoolpulse/pkg/mcperr"
)

// fileDoc is the on-disk layout:
//
//	cities:
//	  Pune: [School A, School B]
type fileDoc struct {
	Cities map[string][]string `yaml:"cities"`
}

// File reads the mapping from a YAML document on every call so edits apply without restart.
type File struct {
	path string
}

// NewFile returns a directory backed by the YAML file at path.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Mapping(ctx context.Context) (Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, mcperr.Unavailable("city directory", errors.Wrapf(err, "read %s", f.path))
	}
	return ParseYAML(data)
}

// ParseYAML decodes a city document into a Mapping. A school listed under
// two cities keeps the first city in sorted city order.
func ParseYAML(data []byte) (Mapping, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "citydir: decode yaml")
	}
	m := Mapping{}
	cities := make([]string, 0, len(doc.Cities))
	for c := range doc.Cities {
		cities = append(cities, c)
	}
	sort.Strings(cities)
	for _, c := range cities {
		city := strings.TrimSpace(c)
		for _, s := range doc.Cities[c] {
			school := strings.TrimSpace(s)
			if school == "" || city == "" {
				continue
			}
			if _, dup := m[school]; dup {
				continue
			}
			m[school] = city
		}
	}
	return m, nil
}
