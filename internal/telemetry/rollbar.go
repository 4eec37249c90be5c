package telemetry

import (
	"os"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
)

// Reporter forwards tool and transport errors to Rollbar. A Reporter built
// without a token is disabled and every call is a no-op.
type Reporter struct {
	enabled bool
}

// NewReporter configures the global Rollbar notifier.
func NewReporter(token, env, codeVersion string) *Reporter {
	if token == "" {
		rollbar.SetEnabled(false)
		return &Reporter{}
	}
	host, _ := os.Hostname()
	rollbar.SetToken(token)
	rollbar.SetEnvironment(env)
	rollbar.SetServerHost(host)
	rollbar.SetCodeVersion(codeVersion)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(true)
	return &Reporter{enabled: true}
}

// Enabled reports whether errors are sent.
func (r *Reporter) Enabled() bool { return r != nil && r.enabled }

// Error reports err with optional extra fields.
func (r *Reporter) Error(err error, extras map[string]any) {
	if !r.Enabled() || err == nil {
		return
	}
	if len(extras) == 0 {
		rollbar.Error(err)
		return
	}
	rollbar.Error(err, extras)
}

// Close flushes queued reports.
func (r *Reporter) Close() {
	if r.Enabled() {
		rollbar.Wait()
	}
}
