// Package vcf reads variant loci from VCF files for batch annotation.
package vcf

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/inodb/cardiovar/internal/genome"
)

// Record is a single VCF data line reduced to what the fetcher needs.
type Record struct {
	Locus  genome.Locus
	ID      string            // Variant identifier (e.g., rs ID)
	Qual    string            // Quality score as written
	Filter  string            // Filter status (PASS or filter name)
	Info    map[string]string // INFO key-value pairs; flags map to ""
	RawInfo string            // INFO column as written
}

// geneInfoKeys are INFO fields that may carry a gene symbol, in priority order.
var geneInfoKeys = []string{"GENE", "Gene", "SYMBOL", "GENEINFO"}

// Gene returns the gene symbol recorded in INFO, if any.
// GENEINFO values ("LMNA:4000|...") yield the first symbol.
func (r *Record) Gene() string {
	for _, k := range geneInfoKeys {
		v, ok := r.Info[k]
		if !ok || v == "" {
			continue
		}
		if i := strings.IndexAny(v, ":|,"); i >= 0 {
			v = v[:i]
		}
		return v
	}
	return ""
}

// RecordParser is the interface for parsers that read records.
type RecordParser interface {
	// Next reads the next record.
	// Returns nil, nil when there are no more records.
	Next() (*Record, error)

	// Close closes the parser and releases resources.
	Close() error

	// LineNumber returns the current line number being processed.
	LineNumber() int
}

// Parser reads records from a VCF file.
type Parser struct {
	reader     *bufio.Reader
	file       *os.File
	gzipReader *gzip.Reader
	lineNumber int
	header     []string
}

// NewParser creates a new VCF parser for the given file.
// Supports both plain VCF and gzipped VCF (.vcf.gz) files.
func NewParser(path string) (*Parser, error) {
	if path == "-" {
		return NewParserFromReader(os.Stdin)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vcf file: %w", err)
	}

	p := &Parser{file: file}

	br := bufio.NewReader(file)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		file.Close()
		return nil, fmt.Errorf("read vcf header: %w", err)
	}

	// gzip magic number (0x1f, 0x8b)
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		p.gzipReader, err = gzip.NewReader(br)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		p.reader = bufio.NewReader(p.gzipReader)
	} else {
		p.reader = br
	}

	if err := p.parseHeader(); err != nil {
		p.Close()
		return nil, err
	}

	return p, nil
}

// NewParserFromReader creates a parser from an io.Reader (e.g., stdin).
func NewParserFromReader(r io.Reader) (*Parser, error) {
	p := &Parser{
		reader: bufio.NewReader(r),
	}

	if err := p.parseHeader(); err != nil {
		return nil, err
	}

	return p, nil
}

// parseHeader reads and stores VCF header lines.
func (p *Parser) parseHeader() error {
	for {
		line, err := p.reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("read header: %w", err)
		}
		p.lineNumber++

		line = strings.TrimRight(line, "\r\n")

		if strings.HasPrefix(line, "##") {
			p.header = append(p.header, line)
			continue
		}

		if strings.HasPrefix(line, "#CHROM") {
			p.header = append(p.header, line)
			return nil
		}

		return &ParseError{
			Line:    p.lineNumber,
			Message: "expected #CHROM header line",
		}
	}

	return &ParseError{
		Line:    p.lineNumber,
		Message: "no #CHROM header line found",
	}
}

// Next reads the next record from the VCF file.
// Returns nil, nil when there are no more records.
func (p *Parser) Next() (*Record, error) {
	for {
		line, err := p.reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF {
				return nil, nil
			}
			return nil, fmt.Errorf("read variant line: %w", err)
		}
		p.lineNumber++

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		return p.parseLine(line)
	}
}

// parseLine parses a single VCF data line into a Record.
func (p *Parser) parseLine(line string) (*Record, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 8 {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("expected at least 8 columns, found %d", len(fields)),
		}
	}

	pos, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || pos < 1 {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("invalid position: %s", fields[1]),
		}
	}

	if fields[0] == "" || fields[3] == "" || fields[4] == "" {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: "missing chromosome or allele",
		}
	}

	return &Record{
		Locus: genome.Locus{
			Chrom: fields[0],
			Pos:   pos,
			Ref:   strings.ToUpper(fields[3]),
			Alt:   strings.ToUpper(fields[4]),
		},
		ID:      fields[2],
		Qual:    fields[5],
		Filter:  fields[6],
		Info:    parseInfo(fields[7]),
		RawInfo: fields[7],
	}, nil
}

// parseInfo parses the INFO field into a map.
func parseInfo(info string) map[string]string {
	result := make(map[string]string)
	if info == "." {
		return result
	}

	for _, kv := range strings.Split(info, ";") {
		key, value, _ := strings.Cut(kv, "=")
		result[key] = value
	}

	return result
}

// SplitMultiAllelic splits a multi-allelic record into one record per alternate allele.
func SplitMultiAllelic(r *Record) []*Record {
	alts := strings.Split(r.Locus.Alt, ",")
	if len(alts) == 1 {
		return []*Record{r}
	}

	records := make([]*Record, len(alts))
	for i, alt := range alts {
		split := *r
		split.Locus.Alt = alt
		records[i] = &split
	}

	return records
}

// Header returns the VCF header lines.
func (p *Parser) Header() []string {
	return p.header
}

// LineNumber returns the current line number being processed.
func (p *Parser) LineNumber() int {
	return p.lineNumber
}

// Close closes the parser and underlying file.
func (p *Parser) Close() error {
	if p.gzipReader != nil {
		p.gzipReader.Close()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

// ParseError represents an error during VCF parsing with line context.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("vcf parse error at line %d: %s", e.Line, e.Message)
}
