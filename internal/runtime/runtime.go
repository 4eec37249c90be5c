package runtime

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/schoolpulse/schoolpulse/config"
)

// Limits are the guardrails applied to every tool call.
type Limits struct {
	MaxConcurrentRequests int
	MaxOpenWorkbooks      int

	// MaxFactRows caps the rows a single aggregation may load.
	MaxFactRows     int
	DefaultPageSize int
	MaxPageSize     int

	OperationTimeout      time.Duration
	AcquireRequestTimeout time.Duration
}

// NewLimits fills unset caps from the config defaults.
func NewLimits(maxConcurrentRequests, maxOpenWorkbooks int) Limits {
	if maxConcurrentRequests <= 0 {
		maxConcurrentRequests = config.DefaultMaxConcurrentRequests
	}
	if maxOpenWorkbooks <= 0 {
		maxOpenWorkbooks = config.DefaultMaxOpenWorkbooks
	}
	return Limits{
		MaxConcurrentRequests: maxConcurrentRequests,
		MaxOpenWorkbooks:      maxOpenWorkbooks,
		MaxFactRows:           config.DefaultMaxFactRows,
		DefaultPageSize:       config.DefaultPageSize,
		MaxPageSize:           config.DefaultMaxPageSize,
		OperationTimeout:      config.DefaultOperationTimeout,
		AcquireRequestTimeout: config.DefaultAcquireRequestTimeout,
	}
}

// PageSize clamps a requested page size into [1, MaxPageSize]; zero selects the default.
func (l Limits) PageSize(requested int) int {
	switch {
	case requested <= 0:
		return l.DefaultPageSize
	case l.MaxPageSize > 0 && requested > l.MaxPageSize:
		return l.MaxPageSize
	}
	return requested
}

// Controller holds the request and workbook semaphores.
type Controller struct {
	limits    Limits
	requests  *semaphore.Weighted
	workbooks *semaphore.Weighted
}

func NewController(limits Limits) *Controller {
	return &Controller{
		limits:    limits,
		requests:  semaphore.NewWeighted(int64(limits.MaxConcurrentRequests)),
		workbooks: semaphore.NewWeighted(int64(limits.MaxOpenWorkbooks)),
	}
}

func (c *Controller) AcquireRequest(ctx context.Context) error { return c.requests.Acquire(ctx, 1) }

func (c *Controller) ReleaseRequest() { c.requests.Release(1) }

// AcquireWorkbook reserves an open workbook slot.
func (c *Controller) AcquireWorkbook(ctx context.Context) error { return c.workbooks.Acquire(ctx, 1) }

func (c *Controller) ReleaseWorkbook() { c.workbooks.Release(1) }

// LimitsSnapshot returns the configured guardrails.
func (c *Controller) LimitsSnapshot() Limits { return c.limits }
