package annotate

import (
	"context"

	"github.com/inodb/cardiovar/internal/genome"
)

// Source names one of the annotation sources in a Result.
type Source string

func (s Source) String() string { return string(s) }

// Sources fetched for every request.
const (
	SourcePopulationFrequency Source = "population_frequency"
	SourceGeneInfo            Source = "gene_info"
	SourceClinicalVariants    Source = "clinical_variants"
	SourceConservation        Source = "conservation"
	SourceTissueExpression    Source = "tissue_expression"
	SourceSequence            Source = "sequence"
)

// AllSources lists every source in output column order.
var AllSources = []Source{
	SourcePopulationFrequency,
	SourceGeneInfo,
	SourceClinicalVariants,
	SourceConservation,
	SourceTissueExpression,
	SourceSequence,
}

// SourceDef describes an annotation source.
type SourceDef struct {
	Name        Source
	Upstream    string // remote service, e.g. "gnomAD"
	Description string
}

// SourceDefs describes the sources in AllSources order.
var SourceDefs = []SourceDef{
	{Name: SourcePopulationFrequency, Upstream: "gnomAD", Description: "Allele frequency (0-1)"},
	{Name: SourceGeneInfo, Upstream: "Ensembl", Description: "Gene coordinates, biotype and protein features"},
	{Name: SourceClinicalVariants, Upstream: "ClinVar", Description: "Clinical significance records"},
	{Name: SourceConservation, Upstream: "UCSC", Description: "PhyloP 100-way conservation per base"},
	{Name: SourceTissueExpression, Upstream: "GTEx", Description: "Median TPM in cardiovascular and reference tissues"},
	{Name: SourceSequence, Upstream: "UCSC", Description: "Reference sequence around the variant"},
}

// FrequencySource returns the population allele frequency of a variant.
type FrequencySource interface {
	AlleleFrequency(ctx context.Context, l genome.Locus) (float64, error)
}

// GeneSource resolves gene identity and position metadata.
type GeneSource interface {
	GeneInfo(ctx context.Context, symbol string) (*GeneInfo, error)
}

// ClinicalSource returns clinical significance records for a variant.
type ClinicalSource interface {
	ClinicalVariants(ctx context.Context, l genome.Locus) ([]ClinicalRecord, error)
}

// ConservationSource returns one conservation score per base of an interval.
type ConservationSource interface {
	Conservation(ctx context.Context, iv genome.Interval) ([]float64, error)
}

// ExpressionSource returns median tissue expression for a gene.
type ExpressionSource interface {
	TissueExpression(ctx context.Context, symbol string) ([]TissueExpression, error)
}

// SequenceSource returns the reference sequence of an interval.
type SequenceSource interface {
	Sequence(ctx context.Context, iv genome.Interval) (string, error)
}

// FallbackSource serves values from a bundled static dataset.
type FallbackSource interface {
	AlleleFrequency(l genome.Locus) (float64, error)
	Gene(symbol string) (*GeneInfo, error)
	RelatedVariants(l genome.Locus) ([]ClinicalRecord, error)
	Conservation(iv genome.Interval) ([]float64, error)
	TissueExpression(symbol string) ([]TissueExpression, error)
	GeneAt(chrom string, pos int64) (string, bool)
}

// Sources bundles the live adapters used by a Fetcher.
// A nil adapter leaves its source to the fallback resolver.
type Sources struct {
	Frequency    FrequencySource
	Gene         GeneSource
	Clinical     ClinicalSource
	Conservation ConservationSource
	Expression   ExpressionSource
	Sequence     SequenceSource
}
