// Package citydir is the single authoritative school to city lookup.
package citydir

import (
	"context"
	"sort"
	"strings"
)

// Other is the city reported for schools missing from the directory.
const Other = "Other"

// Directory resolves which city each school belongs to.
type Directory interface {
	Mapping(ctx context.Context) (Mapping, error)
}

// Mapping maps school name to city.
type Mapping map[string]string

// CityOf returns the school's city, or Other when unmapped. School names
// match ignoring case, as in Schools.
func (m Mapping) CityOf(school string) string {
	school = strings.TrimSpace(school)
	c, ok := m[school]
	if !ok {
		for name, city := range m {
			if strings.EqualFold(strings.TrimSpace(name), school) {
				c, ok = city, true
				break
			}
		}
	}
	if ok && c != "" {
		return c
	}
	return Other
}

// Schools returns the sorted schools located in city.
func (m Mapping) Schools(city string) []string {
	city = strings.TrimSpace(city)
	var out []string
	for school, c := range m {
		if strings.EqualFold(c, city) {
			out = append(out, school)
		}
	}
	sort.Strings(out)
	return out
}

// Cities returns the sorted distinct cities.
func (m Mapping) Cities() []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, c := range m {
		if _, ok := seen[c]; ok || c == "" {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Static is a fixed in-memory directory.
type Static Mapping

func (s Static) Mapping(context.Context) (Mapping, error) {
	out := make(Mapping, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out, nil
}
