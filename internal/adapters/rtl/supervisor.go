package rtl

import (
	"context"

	"github.com/halnode/rtl-bridge/internal/infrastructure/config"
)

// Supervisor manages the configured set of radios as one unit.
type Supervisor struct {
	radios []*Radio
	logger Logger
}

// NewSupervisor builds a radio per config entry, all feeding the same
// sink.
func NewSupervisor(cfgs []config.RadioConfig, sink Sink) *Supervisor {
	s := &Supervisor{logger: noopLogger{}}
	for _, cfg := range cfgs {
		s.radios = append(s.radios, NewRadio(cfg, sink))
	}
	return s
}

// SetLogger sets the logger for the supervisor and every radio.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
	for _, r := range s.radios {
		r.SetLogger(logger)
	}
}

// SetOnStatusChange registers the status callback on every radio.
func (s *Supervisor) SetOnStatusChange(fn func(name, status string)) {
	for _, r := range s.radios {
		r.SetOnStatusChange(fn)
	}
}

// StartAll launches every radio. A radio that fails to start is logged
// and skipped; one dead dongle should not ground the rest.
func (s *Supervisor) StartAll(ctx context.Context) {
	for _, r := range s.radios {
		if err := r.Start(ctx); err != nil {
			s.logger.Error("radio failed to start",
				"radio", r.Name(),
				"error", err)
		}
	}
}

// StopAll terminates every radio.
func (s *Supervisor) StopAll() {
	for _, r := range s.radios {
		if err := r.Stop(); err != nil {
			s.logger.Warn("radio stop failed",
				"radio", r.Name(),
				"error", err)
		}
	}
}

// Radios returns the managed radios.
func (s *Supervisor) Radios() []*Radio {
	return s.radios
}

// Statuses returns the current status of every radio by name.
func (s *Supervisor) Statuses() map[string]string {
	statuses := make(map[string]string, len(s.radios))
	for _, r := range s.radios {
		statuses[r.Name()] = r.Status()
	}
	return statuses
}
