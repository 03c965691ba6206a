// Package genome provides the locus and interval types shared by all sources.
package genome

import (
	"fmt"
	"strings"
)

// Locus identifies a single variant on the reference genome.
type Locus struct {
	Chrom string `json:"chrom" yaml:"chrom"` // Chromosome name (e.g., "22", "chr22")
	Pos   int64  `json:"pos" yaml:"pos"`     // 1-based genomic position
	Ref   string `json:"ref" yaml:"ref"`     // Reference allele
	Alt   string `json:"alt" yaml:"alt"`     // Alternate allele
}

// GeneQuery identifies a gene by its HGNC symbol.
type GeneQuery struct {
	Symbol string
}

// IsSNV returns true if the locus is a single nucleotide variant.
func (l Locus) IsSNV() bool {
	return len(l.Ref) == 1 && len(l.Alt) == 1
}

// NormalizeChrom returns the chromosome name without "chr" prefix.
func (l Locus) NormalizeChrom() string {
	return NormalizeChrom(l.Chrom)
}

// UCSCChrom returns the chromosome name with a "chr" prefix.
func (l Locus) UCSCChrom() string {
	return UCSCChrom(l.Chrom)
}

// Key renders the locus as "chrom:pos:ref:alt" using the chromosome as given.
func (l Locus) Key() string {
	return fmt.Sprintf("%s:%d:%s:%s", l.Chrom, l.Pos, l.Ref, l.Alt)
}

// GnomadID renders the locus as a gnomAD variant identifier ("22-36191400-A-C").
func (l Locus) GnomadID() string {
	return fmt.Sprintf("%s-%d-%s-%s", l.NormalizeChrom(), l.Pos, l.Ref, l.Alt)
}

// String implements fmt.Stringer.
func (l Locus) String() string {
	return fmt.Sprintf("%s:%d %s>%s", l.Chrom, l.Pos, l.Ref, l.Alt)
}

// Window returns the interval covering flank bases on either side of the locus.
// The start is clamped at 0.
func (l Locus) Window(flank int64) Interval {
	start := l.Pos - 1 - flank
	if start < 0 {
		start = 0
	}
	return Interval{Chrom: l.Chrom, Start: start, End: l.Pos + flank}
}

// Centered returns an interval of the given length with the locus at its midpoint.
// The interval is shifted right when it would start before 0.
func (l Locus) Centered(length int64) Interval {
	start := l.Pos - 1 - length/2
	if start < 0 {
		start = 0
	}
	return Interval{Chrom: l.Chrom, Start: start, End: start + length}
}

// Interval is a half-open, 0-based genomic range [Start, End).
type Interval struct {
	Chrom string
	Start int64
	End   int64
}

// Width returns the number of bases in the interval.
func (iv Interval) Width() int64 {
	return iv.End - iv.Start
}

// UCSCChrom returns the chromosome name with a "chr" prefix.
func (iv Interval) UCSCChrom() string {
	return UCSCChrom(iv.Chrom)
}

// Key renders the interval as "chrN:start:end".
func (iv Interval) Key() string {
	return fmt.Sprintf("%s:%d:%d", iv.UCSCChrom(), iv.Start, iv.End)
}

// NormalizeChrom strips a leading "chr" label.
func NormalizeChrom(chrom string) string {
	if len(chrom) > 3 && strings.EqualFold(chrom[:3], "chr") {
		return chrom[3:]
	}
	return chrom
}

// UCSCChrom ensures a leading "chr" label.
func UCSCChrom(chrom string) string {
	return "chr" + NormalizeChrom(chrom)
}
