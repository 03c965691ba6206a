// Package fallback serves annotation values from a bundled static dataset
// when a live source has no data.
package fallback

import (
	"bufio"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"golang.org/x/text/cases"

	"github.com/inodb/cardiovar/internal/annotate"
	"github.com/inodb/cardiovar/internal/genome"
)

// Dataset file names.
const (
	GeneFile         = "gene_annotations.json"
	RelatedFile      = "related_variants.json"
	FrequencyFile    = "gnomad_fallback.json"
	ExpressionFile   = "gtex_expression.tsv"
	ConservationFile = "phylop_fallback.json"
	DomainFile       = "protein_domains.json"
)

// Files lists every dataset file.
var Files = []string{GeneFile, RelatedFile, FrequencyFile, ExpressionFile, ConservationFile, DomainFile}

//go:embed data
var bundled embed.FS

// Bundled returns the dataset compiled into the binary.
func Bundled() afero.Fs {
	sub, err := fs.Sub(bundled, "data")
	if err != nil {
		panic(err) // embed path is fixed at compile time
	}
	return afero.FromIOFS{FS: sub}
}

// Dir returns a read-only view of a dataset directory on disk.
func Dir(path string) afero.Fs {
	return afero.NewReadOnlyFs(afero.NewBasePathFs(afero.NewOsFs(), path))
}

// geneRecord is the on-disk gene format.
type geneRecord struct {
	Symbol     string            `json:"symbol"`
	Name       string            `json:"name"`
	EnsemblID  string            `json:"ensembl_id"`
	Chromosome string            `json:"chromosome"`
	Start      int64             `json:"start"`
	End        int64             `json:"end"`
	Strand     int8              `json:"strand"`
	Biotype    string            `json:"biotype"`
	Links      map[string]string `json:"links"`
}

func (g geneRecord) info() *annotate.GeneInfo {
	info := &annotate.GeneInfo{
		ID:              g.EnsemblID,
		Symbol:          g.Symbol,
		Chrom:           genome.NormalizeChrom(g.Chromosome),
		Start:           g.Start,
		End:             g.End,
		Strand:          g.Strand,
		Biotype:         g.Biotype,
		Description:     g.Name,
		ProteinFeatures: []annotate.ProteinFeature{},
		Links:           map[string]string{},
	}
	for k, v := range g.Links {
		info.Links[k] = v
	}
	return info
}

// domainRecord is the on-disk protein domain format, keyed by gene symbol.
type domainRecord struct {
	ProteinLength int64                     `json:"protein_length"`
	Domains       []annotate.ProteinFeature `json:"protein_domains"`
}

type geneIndex struct {
	records  []geneRecord
	bySymbol map[string]int
	byChrom  map[string]*genome.IntervalTree[int] // record indices per chromosome
}

// lazy loads a value once and remembers the outcome.
type lazy[T any] struct {
	once sync.Once
	val  T
	err  error
}

func (l *lazy[T]) get(load func() (T, error)) (T, error) {
	l.once.Do(func() { l.val, l.err = load() })
	return l.val, l.err
}

// Store is a FallbackSource over a dataset file system. Each file is read on
// first use; values handed out are copies.
type Store struct {
	fs afero.Fs

	genes        lazy[*geneIndex]
	related      lazy[map[string][]annotate.ClinicalRecord]
	frequencies  lazy[map[string]float64]
	expression   lazy[map[string][]annotate.TissueExpression]
	conservation lazy[map[string][]float64]
	domains      lazy[map[string][]annotate.ProteinFeature]
}

var _ annotate.FallbackSource = (*Store)(nil)

// New creates a store reading dataset files from fsys.
func New(fsys afero.Fs) *Store {
	return &Store{fs: fsys}
}

// NewBundled creates a store over the dataset compiled into the binary.
func NewBundled() *Store {
	return New(Bundled())
}

func foldSymbol(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func (s *Store) readJSON(name string, v any) error {
	data, err := afero.ReadFile(s.fs, name)
	if err != nil {
		return fmt.Errorf("read fallback %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return annotate.Errorf(annotate.MalformedResponse, "parse fallback %s: %v", name, err)
	}
	return nil
}

func (s *Store) loadGenes() (*geneIndex, error) {
	var records []geneRecord
	if err := s.readJSON(GeneFile, &records); err != nil {
		return nil, err
	}
	idx := &geneIndex{
		records:  records,
		bySymbol: make(map[string]int, len(records)),
		byChrom:  make(map[string]*genome.IntervalTree[int]),
	}
	perChrom := make(map[string][]int)
	for i, r := range records {
		key := foldSymbol(r.Symbol)
		if _, dup := idx.bySymbol[key]; !dup {
			idx.bySymbol[key] = i
		}
		chrom := genome.NormalizeChrom(r.Chromosome)
		perChrom[chrom] = append(perChrom[chrom], i)
	}
	for chrom, rows := range perChrom {
		idx.byChrom[chrom] = genome.BuildIntervalTree(rows, func(i int) (int64, int64) {
			return records[i].Start, records[i].End
		})
	}
	return idx, nil
}

func (s *Store) loadDomains() (map[string][]annotate.ProteinFeature, error) {
	var raw map[string]domainRecord
	if err := s.readJSON(DomainFile, &raw); err != nil {
		return nil, err
	}
	m := make(map[string][]annotate.ProteinFeature, len(raw))
	for symbol, rec := range raw {
		for _, d := range rec.Domains {
			if d.Start < 1 || d.End < d.Start || (rec.ProteinLength > 0 && d.End > rec.ProteinLength) {
				return nil, annotate.Errorf(annotate.MalformedResponse,
					"parse fallback %s: %s domain %s spans %d-%d", DomainFile, symbol, d.ID, d.Start, d.End)
			}
		}
		m[foldSymbol(symbol)] = rec.Domains
	}
	return m, nil
}

func (s *Store) loadRelated() (map[string][]annotate.ClinicalRecord, error) {
	var m map[string][]annotate.ClinicalRecord
	if err := s.readJSON(RelatedFile, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) loadFrequencies() (map[string]float64, error) {
	var m map[string]float64
	if err := s.readJSON(FrequencyFile, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) loadConservation() (map[string][]float64, error) {
	var m map[string][]float64
	if err := s.readJSON(ConservationFile, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// loadExpression parses the gene_symbol/tissue/tpm TSV.
func (s *Store) loadExpression() (map[string][]annotate.TissueExpression, error) {
	f, err := s.fs.Open(ExpressionFile)
	if err != nil {
		return nil, fmt.Errorf("read fallback %s: %w", ExpressionFile, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read fallback %s: %w", ExpressionFile, err)
		}
		return nil, annotate.Errorf(annotate.MalformedResponse, "parse fallback %s: empty file", ExpressionFile)
	}

	col := map[string]int{"gene_symbol": -1, "tissue": -1, "tpm": -1}
	for i, name := range strings.Split(scanner.Text(), "\t") {
		if _, ok := col[name]; ok {
			col[name] = i
		}
	}
	for name, i := range col {
		if i < 0 {
			return nil, annotate.Errorf(annotate.MalformedResponse, "parse fallback %s: missing %q column", ExpressionFile, name)
		}
	}

	m := make(map[string][]annotate.TissueExpression)
	line := 1
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) <= col["gene_symbol"] || len(fields) <= col["tissue"] || len(fields) <= col["tpm"] {
			return nil, annotate.Errorf(annotate.MalformedResponse, "parse fallback %s: line %d: too few columns", ExpressionFile, line)
		}
		tpm, err := strconv.ParseFloat(fields[col["tpm"]], 64)
		if err != nil {
			return nil, annotate.Errorf(annotate.MalformedResponse, "parse fallback %s: line %d: invalid tpm %q", ExpressionFile, line, fields[col["tpm"]])
		}
		key := foldSymbol(fields[col["gene_symbol"]])
		m[key] = append(m[key], annotate.TissueExpression{Tissue: fields[col["tissue"]], TPM: tpm})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read fallback %s: %w", ExpressionFile, err)
	}
	return m, nil
}

// Gene returns the gene record whose symbol matches case-insensitively.
// Protein-coding genes carry the bundled protein domains; an unreadable
// domain file leaves the feature list empty.
func (s *Store) Gene(symbol string) (*annotate.GeneInfo, error) {
	idx, err := s.genes.get(s.loadGenes)
	if err != nil {
		return nil, err
	}
	i, ok := idx.bySymbol[foldSymbol(symbol)]
	if !ok {
		return nil, annotate.Errorf(annotate.NotFound, "no fallback gene %q", symbol)
	}
	info := idx.records[i].info()
	if info.IsProteinCoding() {
		if domains, err := s.domains.get(s.loadDomains); err == nil {
			info.ProteinFeatures = append(info.ProteinFeatures, domains[foldSymbol(info.Symbol)]...)
		}
	}
	return info, nil
}

// GeneAt returns the symbol of the narrowest gene containing the position.
func (s *Store) GeneAt(chrom string, pos int64) (string, bool) {
	idx, err := s.genes.get(s.loadGenes)
	if err != nil {
		return "", false
	}
	tree, ok := idx.byChrom[genome.NormalizeChrom(chrom)]
	if !ok {
		return "", false
	}
	best := -1
	for _, i := range tree.FindOverlaps(pos) {
		if best < 0 {
			best = i
			continue
		}
		w, bw := idx.records[i].End-idx.records[i].Start, idx.records[best].End-idx.records[best].Start
		if w < bw || (w == bw && i < best) {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return idx.records[best].Symbol, true
}

// RelatedVariants returns the clinical records stored under "chrom:pos:ref:alt".
// An absent key yields an empty list.
func (s *Store) RelatedVariants(l genome.Locus) ([]annotate.ClinicalRecord, error) {
	m, err := s.related.get(s.loadRelated)
	if err != nil {
		return nil, err
	}
	return append([]annotate.ClinicalRecord{}, m[l.Key()]...), nil
}

// AlleleFrequency returns the stored frequency for the variant.
func (s *Store) AlleleFrequency(l genome.Locus) (float64, error) {
	m, err := s.frequencies.get(s.loadFrequencies)
	if err != nil {
		return 0, err
	}
	af, ok := m[l.GnomadID()]
	if !ok {
		return 0, annotate.Errorf(annotate.NotFound, "no fallback frequency for %s", l.GnomadID())
	}
	if af < 0 || af > 1 {
		return 0, annotate.Errorf(annotate.MalformedResponse, "fallback frequency %v for %s out of range", af, l.GnomadID())
	}
	return af, nil
}

// Conservation returns stored scores for exactly this interval.
func (s *Store) Conservation(iv genome.Interval) ([]float64, error) {
	m, err := s.conservation.get(s.loadConservation)
	if err != nil {
		return nil, err
	}
	scores, ok := m[iv.Key()]
	if !ok {
		return nil, annotate.Errorf(annotate.NotFound, "no fallback conservation for %s", iv.Key())
	}
	if int64(len(scores)) != iv.Width() {
		return nil, annotate.Errorf(annotate.ShapeMismatch, "fallback conservation for %s has %d scores", iv.Key(), len(scores))
	}
	return append([]float64(nil), scores...), nil
}

// TissueExpression returns stored expression rows for the gene.
func (s *Store) TissueExpression(symbol string) ([]annotate.TissueExpression, error) {
	m, err := s.expression.get(s.loadExpression)
	if err != nil {
		return nil, err
	}
	rows, ok := m[foldSymbol(symbol)]
	if !ok {
		return nil, annotate.Errorf(annotate.NotFound, "no fallback expression for %q", symbol)
	}
	return append([]annotate.TissueExpression(nil), rows...), nil
}

// Check loads every dataset file and reports all problems found.
func (s *Store) Check() error {
	var err error
	_, e := s.genes.get(s.loadGenes)
	err = multierr.Append(err, e)
	_, e = s.related.get(s.loadRelated)
	err = multierr.Append(err, e)
	_, e = s.frequencies.get(s.loadFrequencies)
	err = multierr.Append(err, e)
	_, e = s.expression.get(s.loadExpression)
	err = multierr.Append(err, e)
	_, e = s.conservation.get(s.loadConservation)
	err = multierr.Append(err, e)
	_, e = s.domains.get(s.loadDomains)
	err = multierr.Append(err, e)
	return err
}
