package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestControllerAcquireRelease(t *testing.T) {
	limits := NewLimits(1, 1)
	controller := NewController(limits)

	require.Equal(t, limits, controller.LimitsSnapshot())

	require.NoError(t, controller.AcquireRequest(context.Background()))
	controller.ReleaseRequest()

	require.NoError(t, controller.AcquireWorkbook(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, controller.AcquireWorkbook(ctx))
	controller.ReleaseWorkbook()
}

func TestLimitsPageSize(t *testing.T) {
	l := NewLimits(0, 0)
	l.DefaultPageSize, l.MaxPageSize = 50, 200
	require.Equal(t, 50, l.PageSize(0))
	require.Equal(t, 7, l.PageSize(7))
	require.Equal(t, 200, l.PageSize(1000))
}
