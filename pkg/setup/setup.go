// Package setup collects startup failures and reports the outcome to the
// companion device.
package setup

import (
	"fmt"
	"log/slog"

	"go.uber.org/multierr"

	"github.com/teslashibe/go-playbot/pkg/protocol"
	"github.com/teslashibe/go-playbot/pkg/robot"
)

// Report accumulates setup-phase errors. The zero value is not usable; call
// New.
type Report struct {
	logger *slog.Logger
	err    error
}

// New returns an empty report.
func New(logger *slog.Logger) *Report {
	if logger == nil {
		logger = slog.Default()
	}
	return &Report{logger: logger.With("component", "setup")}
}

// Record adds a failure of the named step. A nil err is ignored.
func (r *Report) Record(step string, err error) {
	if err == nil {
		return
	}
	r.logger.Warn("setup error", "step", step, "error", err)
	r.err = multierr.Append(r.err, fmt.Errorf("%s: %w", step, err))
}

// Err returns every recorded failure combined, or nil.
func (r *Report) Err() error {
	return r.err
}

// Errors returns the recorded failures individually.
func (r *Report) Errors() []error {
	return multierr.Errors(r.err)
}

// OK reports whether setup completed without errors.
func (r *Report) OK() bool {
	return r.err == nil
}

// Finish sends the success line when nothing failed. No failure line exists
// on the wire; its absence is the signal. status may be nil.
func (r *Report) Finish(out protocol.Emitter, status robot.StatusLight) bool {
	if !r.OK() {
		for _, err := range r.Errors() {
			r.logger.Warn("setup completed with error", "error", err)
		}
		r.setLight(status, robot.LightError)
		return false
	}
	out.Emit(protocol.NewSetupOK())
	r.logger.Info("setup completed successfully")
	r.setLight(status, robot.LightSuccess)
	return true
}

func (r *Report) setLight(status robot.StatusLight, mode robot.LightMode) {
	if status == nil {
		return
	}
	if err := status.SetMode(mode); err != nil {
		r.logger.Debug("status light write failed", "error", err)
	}
}
