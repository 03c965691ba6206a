package annotate

// GeneInfo holds gene identity and position metadata.
type GeneInfo struct {
	ID                  string            `json:"id" yaml:"id"`           // Ensembl gene ID
	Symbol              string            `json:"symbol" yaml:"symbol"`   // HGNC symbol
	Chrom               string            `json:"chrom" yaml:"chrom"`     // seq_region_name
	Start               int64             `json:"start" yaml:"start"`     // 1-based
	End                 int64             `json:"end" yaml:"end"`         // 1-based, inclusive
	Strand              int8              `json:"strand" yaml:"strand"`   // +1 or -1
	Biotype             string            `json:"biotype" yaml:"biotype"` // e.g. protein_coding
	Description         string            `json:"description" yaml:"description"`
	CanonicalTranscript string            `json:"canonical_transcript,omitempty" yaml:"canonical_transcript,omitempty"`
	ProteinFeatures     []ProteinFeature  `json:"protein_features" yaml:"protein_features"`
	Links               map[string]string `json:"links,omitempty" yaml:"links,omitempty"`
}

// BiotypeProteinCoding marks genes that get a protein feature lookup.
const BiotypeProteinCoding = "protein_coding"

// IsProteinCoding returns true if the gene encodes a protein.
func (g *GeneInfo) IsProteinCoding() bool {
	return g.Biotype == BiotypeProteinCoding
}

// Clone returns a deep copy of the gene record.
func (g *GeneInfo) Clone() *GeneInfo {
	if g == nil {
		return nil
	}
	c := *g
	if g.ProteinFeatures != nil {
		c.ProteinFeatures = append([]ProteinFeature(nil), g.ProteinFeatures...)
	}
	if g.Links != nil {
		c.Links = make(map[string]string, len(g.Links))
		for k, v := range g.Links {
			c.Links[k] = v
		}
	}
	return &c
}

// ProteinFeature is a domain or other annotated region of the gene product.
type ProteinFeature struct {
	ID          string `json:"id" yaml:"id"`     // e.g. PF00063
	Type        string `json:"type" yaml:"type"` // e.g. Pfam
	Start       int64  `json:"start" yaml:"start"`
	End         int64  `json:"end" yaml:"end"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// ClinicalRecord is a clinical significance assertion for a variant.
type ClinicalRecord struct {
	VariationID          string `json:"variation_id,omitempty" yaml:"variation_id,omitempty"`
	Title                string `json:"title,omitempty" yaml:"title,omitempty"`
	ClinicalSignificance string `json:"clinical_significance" yaml:"clinical_significance"`
	ReviewStatus         string `json:"review_status,omitempty" yaml:"review_status,omitempty"`
	Condition            string `json:"condition,omitempty" yaml:"condition,omitempty"`
	GeneSymbol           string `json:"gene_symbol,omitempty" yaml:"gene_symbol,omitempty"`
}

// TissueExpression is the median expression of a gene in one tissue.
type TissueExpression struct {
	Tissue string  `json:"tissue" yaml:"tissue"` // display name, e.g. "Heart LV"
	TPM    float64 `json:"tpm" yaml:"tpm"`
}
