package output

import (
	"errors"

	"github.com/tkjaer/ping/internal/shared"
)

// Output interface for different output types
type Output interface {
	Start(info shared.RunInfo)
	Outcome(o shared.Outcome, running shared.Summary)
	Summary(s shared.Summary)
	Close() error
}

// OutputManager manages multiple outputs
type OutputManager struct {
	outputs []Output
}

func (om *OutputManager) Register(o Output) {
	om.outputs = append(om.outputs, o)
}

func (om *OutputManager) Start(info shared.RunInfo) {
	for _, o := range om.outputs {
		o.Start(info)
	}
}

func (om *OutputManager) Outcome(o shared.Outcome, running shared.Summary) {
	for _, out := range om.outputs {
		out.Outcome(o, running)
	}
}

func (om *OutputManager) Summary(s shared.Summary) {
	for _, o := range om.outputs {
		o.Summary(s)
	}
}

// Close closes every output and returns their errors joined.
func (om *OutputManager) Close() error {
	var errs []error
	for _, o := range om.outputs {
		if err := o.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
