package annotate

import (
	"encoding/json"
	"fmt"

	"github.com/inodb/cardiovar/internal/genome"
)

// Provenance records where a source value came from.
type Provenance int

const (
	// Unavailable means neither the live source nor the fallback produced data.
	Unavailable Provenance = iota
	// Live means the value was fetched from the remote service.
	Live
	// Fallback means the value was loaded from the bundled static dataset.
	Fallback
)

func (p Provenance) String() string {
	switch p {
	case Live:
		return "live"
	case Fallback:
		return "fallback"
	default:
		return "unavailable"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Provenance) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Provenance) UnmarshalText(b []byte) error {
	v, err := ParseProvenance(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParseProvenance parses "live", "fallback" or "unavailable".
func ParseProvenance(s string) (Provenance, error) {
	switch s {
	case "live":
		return Live, nil
	case "fallback":
		return Fallback, nil
	case "unavailable":
		return Unavailable, nil
	}
	return Unavailable, fmt.Errorf("unknown provenance %q", s)
}

// Entry is the type-erased view of an Outcome.
type Entry interface {
	Name() Source
	Tag() Provenance
	// Data returns the value, or nil when the outcome is Unavailable.
	Data() any
	// Reason describes the failure that led to a fallback or unavailable outcome.
	Reason() string
	// FromCache reports whether a live value was served from the response cache.
	FromCache() bool
}

// Outcome is a provenance-tagged value for one source.
type Outcome[T any] struct {
	Source     Source
	Provenance Provenance
	Value      T
	Cached     bool  // served from the response cache
	Cause      error // last failure, if the live source did not answer
}

// Available returns true if the outcome carries a value.
func (o Outcome[T]) Available() bool { return o.Provenance != Unavailable }

func (o Outcome[T]) Name() Source { return o.Source }
func (o Outcome[T]) Tag() Provenance { return o.Provenance }

func (o Outcome[T]) Data() any {
	if !o.Available() {
		return nil
	}
	return o.Value
}

func (o Outcome[T]) FromCache() bool { return o.Cached }

func (o Outcome[T]) Reason() string {
	if o.Cause == nil {
		return ""
	}
	return o.Cause.Error()
}

type outcomeView struct {
	Provenance Provenance `json:"provenance" yaml:"provenance"`
	Cached     bool       `json:"cached,omitempty" yaml:"cached,omitempty"`
	Value      any        `json:"value,omitempty" yaml:"value,omitempty"`
	Reason     string     `json:"reason,omitempty" yaml:"reason,omitempty"`
}

func (o Outcome[T]) view() outcomeView {
	return outcomeView{
		Provenance: o.Provenance,
		Cached:     o.Cached,
		Value:      o.Data(),
		Reason:     o.Reason(),
	}
}

// MarshalJSON renders the outcome; unavailable outcomes carry no value.
func (o Outcome[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.view())
}

// MarshalYAML implements yaml.Marshaler.
func (o Outcome[T]) MarshalYAML() (any, error) {
	return o.view(), nil
}

func unavailable[T any](s Source, err error) Outcome[T] {
	return Outcome[T]{Source: s, Provenance: Unavailable, Cause: err}
}

// Result holds one outcome per source for a single request.
// Each field is written exactly once by the goroutine that owns its source.
type Result struct {
	RequestID    string
	Locus        genome.Locus
	Gene         string // symbol used for gene-level sources
	GeneInferred bool   // Gene was derived from the locus, not supplied

	PopulationFrequency Outcome[float64]
	GeneInfo            Outcome[*GeneInfo]
	ClinicalVariants    Outcome[[]ClinicalRecord]
	Conservation        Outcome[[]float64]
	TissueExpression    Outcome[[]TissueExpression]
	Sequence            Outcome[string]
}

// Entries returns the source-keyed view of the result. It always holds
// exactly one entry per source in AllSources.
func (r *Result) Entries() map[Source]Entry {
	return map[Source]Entry{
		SourcePopulationFrequency: r.PopulationFrequency,
		SourceGeneInfo:            r.GeneInfo,
		SourceClinicalVariants:    r.ClinicalVariants,
		SourceConservation:        r.Conservation,
		SourceTissueExpression:    r.TissueExpression,
		SourceSequence:            r.Sequence,
	}
}

// Entry returns the outcome for a single source.
func (r *Result) Entry(s Source) (Entry, bool) {
	e, ok := r.Entries()[s]
	return e, ok
}

// Counts tallies outcomes by provenance.
func (r *Result) Counts() map[Provenance]int {
	counts := make(map[Provenance]int, 3)
	for _, e := range r.Entries() {
		counts[e.Tag()]++
	}
	return counts
}

// FallbackUsed returns true if any source was served from the bundled dataset.
func (r *Result) FallbackUsed() bool {
	return r.Counts()[Fallback] > 0
}

type resultView struct {
	RequestID    string           `json:"request_id,omitempty" yaml:"request_id,omitempty"`
	Variant      genome.Locus     `json:"variant" yaml:"variant"`
	Gene         string           `json:"gene,omitempty" yaml:"gene,omitempty"`
	GeneInferred bool             `json:"gene_inferred,omitempty" yaml:"gene_inferred,omitempty"`
	Annotations  map[Source]Entry `json:"annotations" yaml:"annotations"`
}

func (r *Result) view() resultView {
	return resultView{
		RequestID:    r.RequestID,
		Variant:      r.Locus,
		Gene:         r.Gene,
		GeneInferred: r.GeneInferred,
		Annotations:  r.Entries(),
	}
}

// MarshalJSON renders the result with annotations keyed by source name.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.view())
}

// MarshalYAML implements yaml.Marshaler.
func (r *Result) MarshalYAML() (any, error) {
	return r.view(), nil
}
