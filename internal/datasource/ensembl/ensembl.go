// Package ensembl resolves gene metadata and protein features from the Ensembl REST API.
package ensembl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/inodb/cardiovar/internal/annotate"
	"github.com/inodb/cardiovar/internal/rest"
)

// Defaults for the public Ensembl endpoint.
const (
	DefaultURL     = "https://rest.ensembl.org"
	DefaultTimeout = 10 * time.Second
)

// Client is a GeneSource backed by Ensembl.
type Client struct {
	rest    *rest.Client
	baseURL string
	timeout time.Duration
	logger  *zap.Logger
}

// New creates an Ensembl client. An empty baseURL or zero timeout selects the default.
func New(c *rest.Client, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		rest:    c,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		logger:  zap.NewNop(),
	}
}

// SetLogger sets the logger for protein feature lookup failures.
func (c *Client) SetLogger(l *zap.Logger) {
	c.logger = l
}

type lookupResponse struct {
	ID                  string `json:"id"`
	DisplayName         string `json:"display_name"`
	SeqRegionName       string `json:"seq_region_name"`
	Start               int64  `json:"start"`
	End                 int64  `json:"end"`
	Strand              int8   `json:"strand"`
	Biotype             string `json:"biotype"`
	Description         string `json:"description"`
	CanonicalTranscript string `json:"canonical_transcript"`
	Transcript          []struct {
		ID          string `json:"id"`
		IsCanonical int    `json:"is_canonical"`
		Translation *struct {
			ID string `json:"id"`
		} `json:"Translation"`
	} `json:"Transcript"`
}

type featureResponse struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Start       int64  `json:"start"`
	End         int64  `json:"end"`
	Description string `json:"description"`
}

// GeneInfo looks up a gene by symbol. Protein-coding genes with a canonical
// transcript get a second call for protein features; its failure leaves
// ProteinFeatures empty.
func (c *Client) GeneInfo(ctx context.Context, symbol string) (*annotate.GeneInfo, error) {
	lookupURL := fmt.Sprintf("%s/lookup/symbol/homo_sapiens/%s?expand=1&content-type=application/json",
		c.baseURL, url.PathEscape(symbol))

	var resp lookupResponse
	if err := c.rest.GetJSON(ctx, lookupURL, c.timeout, &resp); err != nil {
		if isUnknownSymbol(err) {
			return nil, annotate.Errorf(annotate.NotFound, "ensembl: no gene with symbol %q", symbol)
		}
		return nil, annotate.Wrap(err)
	}
	if resp.ID == "" {
		return nil, annotate.Errorf(annotate.MalformedResponse, "ensembl: lookup for %q has no gene id", symbol)
	}

	gene := &annotate.GeneInfo{
		ID:                  resp.ID,
		Symbol:              resp.DisplayName,
		Chrom:               resp.SeqRegionName,
		Start:               resp.Start,
		End:                 resp.End,
		Strand:              resp.Strand,
		Biotype:             resp.Biotype,
		Description:         resp.Description,
		CanonicalTranscript: resp.CanonicalTranscript,
		ProteinFeatures:     []annotate.ProteinFeature{},
		Links:               Links(symbol, resp.ID),
	}
	if gene.Symbol == "" {
		gene.Symbol = symbol
	}

	if gene.IsProteinCoding() && gene.CanonicalTranscript != "" {
		features, err := c.proteinFeatures(ctx, translationID(&resp))
		if err != nil {
			c.logger.Warn("protein feature lookup failed",
				zap.String("gene", gene.Symbol),
				zap.String("transcript", gene.CanonicalTranscript),
				zap.Error(err))
		} else {
			gene.ProteinFeatures = features
		}
	}

	return gene, nil
}

func (c *Client) proteinFeatures(ctx context.Context, id string) ([]annotate.ProteinFeature, error) {
	featureURL := fmt.Sprintf("%s/overlap/translation/%s?feature=protein_feature&content-type=application/json",
		c.baseURL, url.PathEscape(id))

	var resp []featureResponse
	if err := c.rest.GetJSON(ctx, featureURL, c.timeout, &resp); err != nil {
		return nil, err
	}

	features := make([]annotate.ProteinFeature, 0, len(resp))
	for _, f := range resp {
		features = append(features, annotate.ProteinFeature{
			ID:          f.ID,
			Type:        f.Type,
			Start:       f.Start,
			End:         f.End,
			Description: f.Description,
		})
	}
	return features, nil
}

// translationID returns the protein ID of the canonical transcript, or the
// unversioned canonical transcript ID when the lookup did not expand it.
func translationID(resp *lookupResponse) string {
	canonical, _, _ := strings.Cut(resp.CanonicalTranscript, ".")
	for _, tr := range resp.Transcript {
		if tr.Translation == nil || tr.Translation.ID == "" {
			continue
		}
		if tr.IsCanonical == 1 || tr.ID == canonical {
			return tr.Translation.ID
		}
	}
	return canonical
}

// isUnknownSymbol reports whether Ensembl rejected the symbol itself.
// Ensembl answers 400 rather than 404 for unknown symbols.
func isUnknownSymbol(err error) bool {
	var se *rest.StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode == http.StatusNotFound ||
		(se.StatusCode == http.StatusBadRequest && strings.Contains(se.Body, "No valid lookup"))
}

// Links returns external database links for a gene.
func Links(symbol, ensemblID string) map[string]string {
	q := url.QueryEscape(symbol)
	links := map[string]string{
		"GeneCards": "https://www.genecards.org/cgi-bin/carddisp.pl?gene=" + q,
		"UniProt":   "https://www.uniprot.org/uniprot/?query=" + q + "&sort=score",
		"OMIM":      "https://www.omim.org/search?index=entry&search=" + q,
	}
	if ensemblID != "" {
		links["gnomAD"] = "https://gnomad.broadinstitute.org/gene/" + ensemblID + "?dataset=gnomad_r4"
		links["Ensembl"] = "https://www.ensembl.org/Homo_sapiens/Gene/Summary?g=" + ensemblID
	}
	return links
}
