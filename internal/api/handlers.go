package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/star/satmap/internal/passes"
	"github.com/star/satmap/internal/propagation"
	"github.com/star/satmap/internal/sampler"
	"github.com/star/satmap/internal/timescale"
	"github.com/star/satmap/internal/transform"
)

// badRequest is a client error carrying extra response fields.
type badRequest struct {
	msg    string
	fields map[string]any
}

func (e *badRequest) Error() string { return e.msg }

func badRequestf(format string, args ...any) error {
	return &badRequest{msg: fmt.Sprintf(format, args...)}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps request errors to status codes: malformed input is 400,
// a missing catalog 503, anything else 500.
func (d *deps) writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := map[string]any{"error": err.Error()}
	status := http.StatusInternalServerError

	var br *badRequest
	var ir *timescale.InvalidRangeError
	switch {
	case errors.As(err, &br):
		status = http.StatusBadRequest
		for k, v := range br.fields {
			body[k] = v
		}
	case errors.As(err, &ir):
		status = http.StatusBadRequest
	case errors.Is(err, errNoCatalog):
		status = http.StatusServiceUnavailable
	default:
		d.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, body)
}

var errNoCatalog = errors.New("no element catalog loaded")

// floatParam parses an optional float query parameter.
func floatParam(r *http.Request, name string, def float64) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, badRequestf("invalid %s %q", name, v)
	}
	return f, nil
}

func durationParam(r *http.Request, name string, def time.Duration) (time.Duration, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, badRequestf("invalid %s %q", name, v)
	}
	return d, nil
}

// observer reads lat, lon (required) and alt (meters, default 0).
func observer(r *http.Request) (transform.Observer, error) {
	q := r.URL.Query()
	if q.Get("lat") == "" || q.Get("lon") == "" {
		return transform.Observer{}, badRequestf("lat and lon are required")
	}
	lat, err := floatParam(r, "lat", 0)
	if err != nil {
		return transform.Observer{}, err
	}
	lon, err := floatParam(r, "lon", 0)
	if err != nil {
		return transform.Observer{}, err
	}
	alt, err := floatParam(r, "alt", 0)
	if err != nil {
		return transform.Observer{}, err
	}
	obs, err := transform.NewObserver(lat, lon, alt)
	if err != nil {
		return transform.Observer{}, &badRequest{msg: err.Error()}
	}
	return obs, nil
}

// window reads start (RFC 3339, default now to the minute), duration and step.
func (d *deps) window(r *http.Request) (timescale.Sequence, error) {
	start := d.now().UTC().Truncate(time.Minute)
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return timescale.Sequence{}, badRequestf("invalid start %q: want RFC 3339", v)
		}
		start = t
	}
	dur, err := durationParam(r, "duration", d.cfg.DefaultWindow)
	if err != nil {
		return timescale.Sequence{}, err
	}
	step, err := durationParam(r, "step", d.cfg.DefaultStep)
	if err != nil {
		return timescale.Sequence{}, err
	}
	s := timescale.ToContinuous(start)
	return timescale.SampleEpochs(s, s.AddDuration(dur), step)
}

// selection returns the catalog entries named by id parameters, or those in
// the group parameters, or everything.
func (d *deps) selection(r *http.Request) ([]propagation.Elements, error) {
	cat := d.store.Get()
	if cat == nil {
		return nil, errNoCatalog
	}
	q := r.URL.Query()
	if ids := q["id"]; len(ids) > 0 {
		out := make([]propagation.Elements, 0, len(ids))
		for _, id := range ids {
			el, ok := cat.Lookup(id)
			if !ok {
				return nil, badRequestf("unknown satellite %q", id)
			}
			out = append(out, el)
		}
		return out, nil
	}
	els := cat.Filter(q["group"]...)
	if len(els) == 0 {
		return nil, badRequestf("no satellites match groups %v", q["group"])
	}
	return els, nil
}

// request resolves the common parameters and enforces the sample budget.
func (d *deps) request(r *http.Request) ([]propagation.Elements, timescale.Sequence, error) {
	els, err := d.selection(r)
	if err != nil {
		return nil, timescale.Sequence{}, err
	}
	seq, err := d.window(r)
	if err != nil {
		return nil, timescale.Sequence{}, err
	}
	// Divide rather than multiply so the comparison cannot overflow.
	if d.cfg.MaxSamples > 0 && seq.Len() > d.cfg.MaxSamples/len(els) {
		return nil, timescale.Sequence{}, &badRequest{
			msg:    fmt.Sprintf("request needs %d epochs for %d satellites", seq.Len(), len(els)),
			fields: map[string]any{"max_samples": d.cfg.MaxSamples},
		}
	}
	return els, seq, nil
}

// logPartial notes sampling failures; the handoff still goes out with its report.
func (d *deps) logPartial(r *http.Request, err error) error {
	var partial *sampler.PartialSamplingFailure
	if errors.As(err, &partial) {
		d.logger.Warn("partial sampling failure", "path", r.URL.Path, "error", err)
		return nil
	}
	return err
}

func (d *deps) skyHandler(w http.ResponseWriter, r *http.Request) {
	obs, err := observer(r)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	minEl, err := floatParam(r, "min_elevation", d.cfg.MinElevation)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	els, seq, err := d.request(r)
	if err != nil {
		d.writeError(w, r, err)
		return
	}

	sky, err := d.sampler.SampleSkyTrack(r.Context(), els, seq, obs)
	if err := d.logPartial(r, err); err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sampler.PolarHandoff(sky.Tracks, obs, seq, sky.Report, minEl))
}

func (d *deps) groundTrackHandler(w http.ResponseWriter, r *http.Request) {
	els, seq, err := d.request(r)
	if err != nil {
		d.writeError(w, r, err)
		return
	}

	gt, err := d.sampler.SampleGroundTrack(r.Context(), els, seq)
	if err := d.logPartial(r, err); err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sampler.GroundHandoff(gt.Tracks, seq, gt.Report))
}

func (d *deps) passesHandler(w http.ResponseWriter, r *http.Request) {
	obs, err := observer(r)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	minEl, err := floatParam(r, "min_elevation", d.cfg.MinElevation)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	els, seq, err := d.request(r)
	if err != nil {
		d.writeError(w, r, err)
		return
	}

	res, err := passes.Predict(r.Context(), d.prop, d.sampler, passes.Request{
		Observer: obs, Elements: els, Epochs: seq, MinElevation: minEl,
	})
	if err := d.logPartial(r, err); err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"satellites": res})
}

// satelliteDoc is the catalog view of one element set.
type satelliteDoc struct {
	sampler.Satellite
	Kind  string          `json:"kind"`
	Epoch timescale.Epoch `json:"epoch"`
}

func docOf(el propagation.Elements) satelliteDoc {
	return satelliteDoc{
		Satellite: sampler.Satellite{ID: el.ID, Name: el.Name, Group: el.Group},
		Kind:      el.Kind.String(),
		Epoch:     el.Epoch,
	}
}

func (d *deps) satellitesHandler(w http.ResponseWriter, r *http.Request) {
	cat := d.store.Get()
	if cat == nil {
		d.writeError(w, r, errNoCatalog)
		return
	}
	els := cat.Filter(r.URL.Query()["group"]...)
	docs := make([]satelliteDoc, len(els))
	for i, el := range els {
		docs[i] = docOf(el)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"groups":     cat.Groups(),
		"satellites": docs,
	})
}

func (d *deps) satelliteHandler(w http.ResponseWriter, r *http.Request) {
	cat := d.store.Get()
	if cat == nil {
		d.writeError(w, r, errNoCatalog)
		return
	}
	el, ok := cat.Lookup(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown satellite"})
		return
	}
	writeJSON(w, http.StatusOK, docOf(el))
}
