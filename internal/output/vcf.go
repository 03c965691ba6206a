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

// defaultVCFHeader is used when no input header is supplied.
var defaultVCFHeader = []string{
	"##fileformat=VCFv4.2",
	"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO",
}

// infoEscaper percent-encodes characters that are reserved in INFO values.
var infoEscaper = strings.NewReplacer(
	"%", "%25",
	";", "%3B",
	"=", "%3D",
	",", "%2C",
	" ", "%20",
	"\t", "%09",
)

// VCFWriter writes one VCF line per result. Each source becomes an INFO
// field CV_<source>=<provenance>|<summary>.
type VCFWriter struct {
	w           *bufio.Writer
	headerLines []string // input header lines (## and #CHROM)
}

// NewVCFWriter creates a new VCF output writer. headerLines may be nil.
func NewVCFWriter(w io.Writer, headerLines []string) *VCFWriter {
	if len(headerLines) == 0 {
		headerLines = defaultVCFHeader
	}
	return &VCFWriter{
		w:           bufio.NewWriter(w),
		headerLines: headerLines,
	}
}

// InfoKey returns the INFO field ID for a source.
func InfoKey(s annotate.Source) string {
	return "CV_" + string(s)
}

// WriteHeader writes the header lines with cardiovar INFO definitions
// inserted before #CHROM.
func (vw *VCFWriter) WriteHeader() error {
	var infoLines []string
	infoLines = append(infoLines,
		`##INFO=<ID=CV_GENE,Number=1,Type=String,Description="Gene symbol used for gene-level sources">`,
		`##INFO=<ID=CV_GENE_INFERRED,Number=0,Type=Flag,Description="Gene inferred from bundled gene coordinates">`,
		`##INFO=<ID=CV_FALLBACK,Number=0,Type=Flag,Description="At least one source served from the fallback dataset">`)
	for _, def := range annotate.SourceDefs {
		infoLines = append(infoLines, fmt.Sprintf(
			`##INFO=<ID=%s,Number=1,Type=String,Description="%s from %s. Format: provenance|summary">`,
			InfoKey(def.Name), def.Description, def.Upstream))
	}

	for _, line := range vw.headerLines {
		if strings.HasPrefix(line, "##INFO=<ID=CV_") {
			continue
		}
		if strings.HasPrefix(line, "#CHROM") {
			for _, info := range infoLines {
				if _, err := vw.w.WriteString(info + "\n"); err != nil {
					return err
				}
			}
		}
		if _, err := vw.w.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// Write writes a single result as a VCF data line. When rec is set, its
// CHROM, ID, QUAL, FILTER and INFO columns are kept and the CV_ fields are
// appended to the original INFO.
func (vw *VCFWriter) Write(rec *vcf.Record, r *annotate.Result) error {
	l := r.Locus
	chrom, id, qual, filter, info := l.Chrom, ".", ".", ".", "."
	if rec != nil {
		chrom = rec.Locus.Chrom
		id = orDot(rec.ID)
		qual = orDot(rec.Qual)
		filter = orDot(rec.Filter)
		info = stripCVFields(rec.RawInfo)
	}

	var lb strings.Builder
	lb.Grow(256)

	lb.WriteString(chrom)
	lb.WriteByte('\t')
	lb.WriteString(strconv.FormatInt(l.Pos, 10))
	lb.WriteByte('\t')
	lb.WriteString(id)
	lb.WriteByte('\t')
	lb.WriteString(l.Ref)
	lb.WriteByte('\t')
	lb.WriteString(l.Alt)
	lb.WriteByte('\t')
	lb.WriteString(qual)
	lb.WriteByte('\t')
	lb.WriteString(filter)
	lb.WriteByte('\t')
	if info != "." {
		lb.WriteString(info)
		lb.WriteByte(';')
	}

	if r.Gene != "" {
		lb.WriteString("CV_GENE=")
		lb.WriteString(infoEscaper.Replace(r.Gene))
		lb.WriteByte(';')
		if r.GeneInferred {
			lb.WriteString("CV_GENE_INFERRED;")
		}
	}
	if r.FallbackUsed() {
		lb.WriteString("CV_FALLBACK;")
	}

	entries := r.Entries()
	for i, s := range annotate.AllSources {
		if i > 0 {
			lb.WriteByte(';')
		}
		e := entries[s]
		lb.WriteString(InfoKey(s))
		lb.WriteByte('=')
		lb.WriteString(e.Tag().String())
		if e.Tag() != annotate.Unavailable {
			lb.WriteByte('|')
			lb.WriteString(infoEscaper.Replace(Summary(e.Data())))
		}
	}

	lb.WriteByte('\n')
	_, err := vw.w.WriteString(lb.String())
	return err
}

// Flush flushes any buffered data to the underlying writer.
func (vw *VCFWriter) Flush() error {
	return vw.w.Flush()
}

func orDot(s string) string {
	if s == "" {
		return "."
	}
	return s
}

// stripCVFields removes CV_ fields left by an earlier run from a raw INFO string.
func stripCVFields(rawInfo string) string {
	if rawInfo == "" || rawInfo == "." {
		return "."
	}
	if !strings.Contains(rawInfo, "CV_") {
		return rawInfo
	}

	kept := make([]string, 0, 8)
	for _, field := range strings.Split(rawInfo, ";") {
		if field == "" || strings.HasPrefix(field, "CV_") {
			continue
		}
		kept = append(kept, field)
	}
	if len(kept) == 0 {
		return "."
	}
	return strings.Join(kept, ";")
}
