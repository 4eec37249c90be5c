// Package workbooks manages open Excel workbooks used as assessment import sources.
package workbooks

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/schoolpulse/schoolpulse/config"
)

// Handle is an open workbook with an idle deadline.
type Handle struct {
	ID        string
	Path      string
	File      *excelize.File
	OpenedAt  time.Time
	ExpiresAt time.Time
	mu        sync.RWMutex
}

// Gate bounds the number of simultaneously open workbooks (runtime.Controller).
type Gate interface {
	AcquireWorkbook(ctx context.Context) error
	ReleaseWorkbook()
}

// PathValidator returns the canonical path for an allowed file or an error.
type PathValidator interface {
	ValidateOpenPath(path string) (string, error)
}

// ErrHandleNotFound indicates an unknown or evicted handle.
var ErrHandleNotFound = errors.New("workbooks: handle not found")

// ErrUnsupportedFormat rejects files that are not xlsx/xlsm workbooks.
var ErrUnsupportedFormat = errors.New("workbooks: unsupported format")

// Manager caches open workbooks by canonical path so repeated imports of the
// same file share one handle. Idle handles are evicted after ttl.
type Manager struct {
	mu        sync.RWMutex
	handles   map[string]*Handle
	byPath    map[string]string
	ttl       time.Duration
	sweep     time.Duration
	now       func() time.Time
	gate      Gate
	validator PathValidator
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewManager builds a manager; non-positive durations fall back to the config
// defaults, a nil clock to time.Now. gate may be nil.
func NewManager(ttl, sweep time.Duration, gate Gate, now func() time.Time) *Manager {
	if ttl <= 0 {
		ttl = config.DefaultWorkbookIdleTTL
	}
	if sweep <= 0 {
		sweep = config.DefaultWorkbookCleanupPeriod
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{
		handles: map[string]*Handle{},
		byPath:  map[string]string{},
		ttl:     ttl,
		sweep:   sweep,
		now:     now,
		gate:    gate,
		stop:    make(chan struct{}),
	}
}

// SetPathValidator installs the allow-list check applied by Open.
func (m *Manager) SetPathValidator(v PathValidator) { m.validator = v }

// Start runs idle eviction in the background until Close.
func (m *Manager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		t := time.NewTicker(m.sweep)
		defer t.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-t.C:
				m.EvictExpired()
			}
		}
	}()
}

// Close stops eviction and closes every open workbook.
func (m *Manager) Close(ctx context.Context) error {
	close(m.stop)
	done := make(chan struct{})
	go func() { m.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.mu.Lock()
	handles := m.handles
	m.handles = map[string]*Handle{}
	m.byPath = map[string]string{}
	m.mu.Unlock()
	for _, h := range handles {
		_ = m.closeHandle(h)
	}
	return nil
}

// Open returns the handle id for path, opening the workbook unless it is
// already cached. A cached handle has its idle deadline refreshed.
func (m *Manager) Open(ctx context.Context, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
	default:
		return "", errors.Wrapf(ErrUnsupportedFormat, "%q", filepath.Ext(path))
	}
	if m.validator != nil {
		canonical, err := m.validator.ValidateOpenPath(path)
		if err != nil {
			return "", err
		}
		path = canonical
	}

	m.mu.RLock()
	id, cached := m.byPath[path]
	m.mu.RUnlock()
	if cached {
		if _, ok := m.Get(id); ok {
			return id, nil
		}
	}

	if err := m.acquire(ctx); err != nil {
		return "", err
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		m.release()
		return "", errors.Wrap(err, "workbooks: open")
	}
	h := m.register(f, path)
	return h.ID, nil
}

func (m *Manager) register(f *excelize.File, path string) *Handle {
	opened := m.now()
	h := &Handle{ID: uuid.NewString(), Path: path, File: f, OpenedAt: opened, ExpiresAt: opened.Add(m.ttl)}
	m.mu.Lock()
	m.handles[h.ID] = h
	if path != "" {
		m.byPath[path] = h.ID
	}
	m.mu.Unlock()
	return h
}

// Get returns a handle and refreshes its idle deadline.
func (m *Manager) Get(id string) (*Handle, bool) {
	m.mu.RLock()
	h, ok := m.handles[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	h.mu.Lock()
	h.ExpiresAt = m.now().Add(m.ttl)
	h.mu.Unlock()
	return h, true
}

// WithRead runs fn while holding the handle's read lock.
func (m *Manager) WithRead(id string, fn func(*excelize.File) error) error {
	h, ok := m.Get(id)
	if !ok {
		return ErrHandleNotFound
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return fn(h.File)
}

// Sheets lists the sheet names of an open workbook.
func (m *Manager) Sheets(id string) ([]string, error) {
	var out []string
	err := m.WithRead(id, func(f *excelize.File) error {
		out = f.GetSheetList()
		return nil
	})
	return out, err
}

// ResolveSheet matches name against the workbook's sheets ignoring case and
// returns the stored spelling. An empty name selects the first sheet.
func (m *Manager) ResolveSheet(id, name string) (string, error) {
	sheets, err := m.Sheets(id)
	if err != nil {
		return "", err
	}
	if len(sheets) == 0 {
		return "", fmt.Errorf("workbooks: workbook has no sheets")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return sheets[0], nil
	}
	for _, s := range sheets {
		if strings.EqualFold(s, name) {
			return s, nil
		}
	}
	return "", fmt.Errorf("workbooks: sheet %s does not exist", name)
}

// CloseHandle closes one workbook and frees its slot.
func (m *Manager) CloseHandle(id string) error {
	m.mu.Lock()
	h, ok := m.handles[id]
	if ok {
		delete(m.handles, id)
		if h.Path != "" {
			delete(m.byPath, h.Path)
		}
	}
	m.mu.Unlock()
	if !ok {
		return ErrHandleNotFound
	}
	return m.closeHandle(h)
}

// EvictExpired closes every handle past its idle deadline and returns how many were closed.
func (m *Manager) EvictExpired() int {
	now := m.now()
	var expired []*Handle
	m.mu.Lock()
	for id, h := range m.handles {
		h.mu.RLock()
		gone := now.After(h.ExpiresAt)
		h.mu.RUnlock()
		if gone {
			expired = append(expired, h)
			delete(m.handles, id)
			if h.Path != "" {
				delete(m.byPath, h.Path)
			}
		}
	}
	m.mu.Unlock()
	for _, h := range expired {
		_ = m.closeHandle(h)
	}
	return len(expired)
}

// Count is the number of open workbooks.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handles)
}

// closeHandle waits for in-flight readers before closing.
func (m *Manager) closeHandle(h *Handle) error {
	h.mu.Lock()
	err := h.File.Close()
	h.mu.Unlock()
	m.release()
	return err
}

func (m *Manager) acquire(ctx context.Context) error {
	if m.gate == nil {
		return nil
	}
	return m.gate.AcquireWorkbook(ctx)
}

func (m *Manager) release() {
	if m.gate != nil {
		m.gate.ReleaseWorkbook()
	}
}
