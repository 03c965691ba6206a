// Package output provides result output formatters.
package output

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/inodb/cardiovar/internal/annotate"
	"github.com/inodb/cardiovar/internal/vcf"
)

// TabWriter writes one row per result in tab-delimited format. Each source
// column holds "provenance" or "provenance:summary".
type TabWriter struct {
	w       *bufio.Writer
	columns []string
}

// NewTabWriter creates a new tab-delimited writer.
func NewTabWriter(w io.Writer) *TabWriter {
	columns := []string{
		"#Variant",
		"Location",
		"Gene",
	}
	for _, s := range annotate.AllSources {
		columns = append(columns, string(s))
	}
	columns = append(columns, "Fallback_used")
	return &TabWriter{w: bufio.NewWriter(w), columns: columns}
}

// WriteHeader writes the header line.
func (tw *TabWriter) WriteHeader() error {
	_, err := tw.w.WriteString(strings.Join(tw.columns, "\t") + "\n")
	return err
}

// Write writes a single result.
func (tw *TabWriter) Write(_ *vcf.Record, r *annotate.Result) error {
	l := r.Locus

	gene := r.Gene
	if gene == "" {
		gene = "-"
	} else if r.GeneInferred {
		gene += "*"
	}

	values := []string{
		l.Key(),
		fmt.Sprintf("%s:%d", l.Chrom, l.Pos),
		gene,
	}
	entries := r.Entries()
	for _, s := range annotate.AllSources {
		values = append(values, Cell(entries[s]))
	}

	fallback := "-"
	if r.FallbackUsed() {
		fallback = "YES"
	}
	values = append(values, fallback)

	_, err := tw.w.WriteString(strings.Join(values, "\t") + "\n")
	return err
}

// Flush flushes any buffered data to the underlying writer.
func (tw *TabWriter) Flush() error {
	return tw.w.Flush()
}

// Cell renders an entry as "provenance:summary".
func Cell(e annotate.Entry) string {
	tag := e.Tag().String()
	if e.Tag() == annotate.Unavailable {
		return tag
	}
	return tag + ":" + Summary(e.Data())
}

// Summary renders a compact, single-line description of a source value.
func Summary(v any) string {
	switch v := v.(type) {
	case float64:
		return strconv.FormatFloat(v, 'g', 6, 64)
	case *annotate.GeneInfo:
		if v == nil {
			return "-"
		}
		s := v.Symbol
		if v.ID != "" {
			s += "(" + v.ID + ")"
		}
		if v.Biotype != "" {
			s += "," + v.Biotype
		}
		if n := len(v.ProteinFeatures); n > 0 {
			s += fmt.Sprintf(",%d features", n)
		}
		return s
	case []annotate.ClinicalRecord:
		if len(v) == 0 {
			return "0 records"
		}
		sigs := make([]string, 0, len(v))
		for _, rec := range v {
			sigs = append(sigs, rec.ClinicalSignificance)
		}
		return strings.Join(sigs, ";")
	case []float64:
		if len(v) == 0 {
			return "n=0"
		}
		var sum float64
		for _, x := range v {
			sum += x
		}
		return fmt.Sprintf("n=%d,mean=%.3f", len(v), sum/float64(len(v)))
	case []annotate.TissueExpression:
		if len(v) == 0 {
			return "none"
		}
		parts := make([]string, 0, len(v))
		for _, t := range v {
			parts = append(parts, fmt.Sprintf("%s=%.2f", t.Tissue, t.TPM))
		}
		return strings.Join(parts, ";")
	case string:
		return fmt.Sprintf("%dbp", len(v))
	}
	return fmt.Sprint(v)
}
