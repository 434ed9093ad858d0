package propagation

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/star/satmap/internal/timescale"
)

// model is the common propagation interface built once per element set.
// Implementations are immutable and safe for concurrent use.
type model interface {
	stateAt(target timescale.Epoch) (StateVector, error)
}

// newModel runs the conversion routine for the element variant.
func newModel(el Elements, cfg PropConfig) (model, error) {
	switch el.Kind {
	case KindKeplerian:
		return newKeplerModel(el, cfg)
	case KindTLE:
		return newSGP4Model(el)
	default:
		return nil, fmt.Errorf("elements for %s: unknown kind %d", el.ID, el.Kind)
	}
}

// Propagator turns orbital elements into inertial state vectors.
type Propagator struct {
	config PropConfig
	pool   *WorkerPool
	logger *slog.Logger
}

// NewPropagator creates a propagator. Zero-valued solver settings fall back
// to the defaults.
func NewPropagator(config PropConfig, logger *slog.Logger) *Propagator {
	def := DefaultPropConfig()
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.KeplerTol <= 0 {
		config.KeplerTol = def.KeplerTol
	}
	if config.KeplerMaxIter <= 0 {
		config.KeplerMaxIter = def.KeplerMaxIter
	}
	return &Propagator{
		config: config,
		pool:   NewWorkerPool(config.Workers, logger),
		logger: logger,
	}
}

// Config returns the effective configuration.
func (p *Propagator) Config() PropConfig { return p.config }

// Pool returns the worker pool used for batch propagation.
func (p *Propagator) Pool() *WorkerPool { return p.pool }

// Prepared is an element set with its model initialized, ready to be
// evaluated at many epochs.
type Prepared struct {
	Elements Elements
	model    model
	window   time.Duration
}

// Prepare validates el and builds its propagation model.
func (p *Propagator) Prepare(el Elements) (*Prepared, error) {
	m, err := newModel(el, p.config)
	if err != nil {
		return nil, err
	}
	if el.Kind == KindTLE && el.Epoch.IsZero() {
		if el.Epoch, err = TLEEpoch(el.TLE.Line1); err != nil {
			return nil, fmt.Errorf("elements for %s: %w", el.ID, err)
		}
	}
	return &Prepared{Elements: el, model: m, window: p.config.window(el.Kind)}, nil
}

// Propagate computes the inertial state of el at target. When target lies
// outside the trusted window the state is returned together with a
// *StaleElementsError; check with IsAdvisory.
func (p *Propagator) Propagate(el Elements, target timescale.Epoch) (StateVector, error) {
	pr, err := p.Prepare(el)
	if err != nil {
		return StateVector{}, err
	}
	return pr.StateAt(target)
}

// StateAt evaluates the prepared model at target.
func (pr *Prepared) StateAt(target timescale.Epoch) (StateVector, error) {
	sv, err := pr.model.stateAt(target)
	if err != nil {
		return StateVector{}, fmt.Errorf("propagating %s to %s: %w", pr.Elements.ID, target, err)
	}
	if pr.window > 0 {
		age := time.Duration(target.Sub(pr.Elements.Epoch) * float64(time.Second))
		if math.Abs(float64(age)) > float64(pr.window) {
			return sv, &StaleElementsError{ID: pr.Elements.ID, Age: age, Window: pr.window}
		}
	}
	return sv, nil
}
