// Package insights assembles dashboard answers from the fact store and the
// aggregation engine. Every method resolves a filter selection, loads the
// matching rows once, and shapes the engine output for a tool response.
package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/schoolpulse/schoolpulse/internal/cache"
	"github.com/schoolpulse/schoolpulse/internal/citydir"
	"github.com/schoolpulse/schoolpulse/internal/filters"
	"github.com/schoolpulse/schoolpulse/internal/records"
	"github.com/schoolpulse/schoolpulse/internal/runtime"
	"github.com/schoolpulse/schoolpulse/internal/store"
	"github.com/schoolpulse/schoolpulse/internal/telemetry"
	"github.com/schoolpulse/schoolpulse/internal/workbooks"
	"github.com/schoolpulse/schoolpulse/pkg/mcperr"
)

// ErrUnsupportedDimension is returned when a grouping dimension does not exist
// on the requested row kind.
var ErrUnsupportedDimension = errors.New("insights: unsupported dimension")

// ErrCursorMismatch is returned when a cursor was issued for other filters.
var ErrCursorMismatch = errors.New("insights: cursor does not match filters")

// Deps wires a Service. Source is required; the rest are optional.
type Deps struct {
	Source   store.Source
	Resolver *filters.Resolver
	Cities   citydir.Directory
	Cache    *cache.FIFO[any]
	Limits   runtime.Limits

	// Sink and Workbooks back imports, which also need ImportsEnabled.
	Sink           store.Sink
	Workbooks      *workbooks.Manager
	ImportsEnabled bool

	Logger zerolog.Logger
}

// Service answers dashboard queries.
type Service struct {
	source   store.Source
	resolver *filters.Resolver
	cities   citydir.Directory
	cache    *cache.FIFO[any]
	limits   runtime.Limits

	sink      store.Sink
	workbooks *workbooks.Manager
	imports   bool

	logger zerolog.Logger
}

// New builds a Service. A missing resolver is derived from Cities.
func New(d Deps) *Service {
	if d.Resolver == nil {
		d.Resolver = filters.NewResolver(d.Cities, d.Logger)
	}
	if d.Cache == nil {
		d.Cache = cache.NewFIFO[any](0)
	}
	d.Cache.OnEvict(func(key string) {
		telemetry.ObserveEviction(cacheTool(key))
	})
	if d.Limits.MaxFactRows == 0 && d.Limits.DefaultPageSize == 0 {
		d.Limits = runtime.NewLimits(0, 0)
	}
	return &Service{
		source:    d.Source,
		resolver:  d.Resolver,
		cities:    d.Cities,
		cache:     d.Cache,
		limits:    d.Limits,
		sink:      d.Sink,
		workbooks: d.Workbooks,
		imports:   d.ImportsEnabled && d.Sink != nil,
		logger:    d.Logger.With().Str("component", "insights").Logger(),
	}
}

// ImportsEnabled reports whether Import can succeed.
func (s *Service) ImportsEnabled() bool { return s.imports }

func (s *Service) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.logger
}

// cached memoizes compute under a key built from the tool name, its
// parameters and the canonical filter hash.
func cached[T any](s *Service, tool string, set filters.Set, params any, compute func() (T, error)) (T, error) {
	key := cacheKey(tool, set, params)
	if v, ok := s.cache.Get(key); ok {
		if out, ok := v.(T); ok {
			telemetry.ObserveCache(true)
			return out, nil
		}
	}
	telemetry.ObserveCache(false)
	out, err := compute()
	if err != nil {
		return out, err
	}
	s.cache.Put(key, out)
	return out, nil
}

func cacheKey(tool string, set filters.Set, params any) string {
	p, _ := json.Marshal(params)
	return tool + "|" + string(p) + "|" + set.Hash()
}

func cacheTool(key string) string {
	tool, _, _ := strings.Cut(key, "|")
	return tool
}

// checkDims rejects dimensions that the row kind cannot group by. City is
// always accepted since it is derived from the school.
func checkDims(allowed []records.Dimension, dims ...records.Dimension) error {
	for _, d := range dims {
		if d == records.City {
			continue
		}
		ok := false
		for _, a := range allowed {
			if a == d {
				ok = true
				break
			}
		}
		if !ok {
			return errors.Wrapf(ErrUnsupportedDimension, "%q", d)
		}
	}
	return nil
}

func needsCity(dims ...records.Dimension) bool {
	for _, d := range dims {
		if d == records.City {
			return true
		}
	}
	return false
}

func (s *Service) resolve(ctx context.Context, set filters.Set) (filters.Query, error) {
	q, err := s.resolver.Resolve(ctx, set)
	if err != nil {
		if mcperr.IsUnavailable(err) {
			return q, err
		}
		return q, mcperr.Unavailable("resolve filters", err)
	}
	return q, nil
}

func (s *Service) capRows(n int, what string) error {
	if s.limits.MaxFactRows > 0 && n > s.limits.MaxFactRows {
		return errors.Wrapf(mcperr.ErrLimitExceeded, "%d %s rows match, limit is %d", n, what, s.limits.MaxFactRows)
	}
	return nil
}

// cityMapping loads the directory when a grouping needs the city of each school.
func (s *Service) cityMapping(ctx context.Context, dims ...records.Dimension) (citydir.Mapping, error) {
	if !needsCity(dims...) || s.cities == nil {
		return nil, nil
	}
	m, err := s.cities.Mapping(ctx)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) assessments(ctx context.Context, set filters.Set, dims ...records.Dimension) ([]records.Assessment, error) {
	q, err := s.resolve(ctx, set)
	if err != nil {
		return nil, err
	}
	rows, err := s.source.Assessments(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := s.capRows(len(rows), "assessment"); err != nil {
		return nil, err
	}
	m, err := s.cityMapping(ctx, dims...)
	if err != nil {
		return nil, err
	}
	if m != nil {
		for i := range rows {
			rows[i].City = m.CityOf(rows[i].School)
		}
	}
	s.log(ctx).Debug().Int("rows", len(rows)).Str("filters", set.Hash()).Msg("assessments loaded")
	return rows, nil
}

func (s *Service) attendance(ctx context.Context, kind records.AttendanceKind, set filters.Set, dims ...records.Dimension) ([]records.Attendance, error) {
	q, err := s.resolve(ctx, set)
	if err != nil {
		return nil, err
	}
	rows, err := s.source.Attendance(ctx, kind, q)
	if err != nil {
		return nil, err
	}
	if err := s.capRows(len(rows), string(kind)+" attendance"); err != nil {
		return nil, err
	}
	m, err := s.cityMapping(ctx, dims...)
	if err != nil {
		return nil, err
	}
	if m != nil {
		for i := range rows {
			rows[i].City = m.CityOf(rows[i].School)
		}
	}
	return rows, nil
}

func (s *Service) enrollment(ctx context.Context, set filters.Set, dims ...records.Dimension) ([]records.Enrollment, error) {
	q, err := s.resolve(ctx, set)
	if err != nil {
		return nil, err
	}
	rows, err := s.source.Enrollment(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := s.capRows(len(rows), "enrollment"); err != nil {
		return nil, err
	}
	m, err := s.cityMapping(ctx, dims...)
	if err != nil {
		return nil, err
	}
	if m != nil {
		for i := range rows {
			rows[i].City = m.CityOf(rows[i].School)
		}
	}
	return rows, nil
}

// ParseKind resolves an attendance kind, defaulting to student attendance.
func ParseKind(s string) (records.AttendanceKind, error) {
	switch k := records.AttendanceKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return records.KindStudent, nil
	case records.KindStudent, records.KindPTM, records.KindSWPTM:
		return k, nil
	}
	return "", fmt.Errorf("insights: unknown attendance kind %q", s)
}
