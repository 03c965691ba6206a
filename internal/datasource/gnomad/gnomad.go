// Package gnomad fetches population allele frequencies from the gnomAD GraphQL API.
package gnomad

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/inodb/cardiovar/internal/annotate"
	"github.com/inodb/cardiovar/internal/genome"
	"github.com/inodb/cardiovar/internal/rest"
)

// Defaults for the public gnomAD endpoint.
const (
	DefaultURL     = "https://gnomad.broadinstitute.org/api"
	DefaultDataset = "gnomad_r4"
	DefaultTimeout = 10 * time.Second
)

const variantQuery = `query VariantFrequency($variantId: String!, $dataset: DatasetId!) {
  variant(variantId: $variantId, dataset: $dataset) {
    variant_id
    genome { af }
    exome { af }
  }
}`

// Client is a FrequencySource backed by gnomAD.
type Client struct {
	rest    *rest.Client
	url     string
	dataset string
	timeout time.Duration
}

// New creates a gnomAD client. An empty url or zero timeout selects the default.
func New(c *rest.Client, url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{rest: c, url: url, dataset: DefaultDataset, timeout: timeout}
}

// SetDataset selects the gnomAD release queried (e.g. "gnomad_r2_1").
func (c *Client) SetDataset(dataset string) {
	c.dataset = dataset
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type frequency struct {
	AF *float64 `json:"af"`
}

type response struct {
	Data *struct {
		Variant *struct {
			VariantID string     `json:"variant_id"`
			Genome    *frequency `json:"genome"`
			Exome     *frequency `json:"exome"`
		} `json:"variant"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// AlleleFrequency returns the allele frequency of the variant, preferring
// the genome callset over the exome callset.
func (c *Client) AlleleFrequency(ctx context.Context, l genome.Locus) (float64, error) {
	req := request{
		Query: variantQuery,
		Variables: map[string]any{
			"variantId": l.GnomadID(),
			"dataset":   c.dataset,
		},
	}

	var resp response
	if err := c.rest.PostJSON(ctx, c.url, req, c.timeout, &resp); err != nil {
		return 0, annotate.Wrap(err)
	}

	for _, e := range resp.Errors {
		if strings.Contains(strings.ToLower(e.Message), "not found") {
			return 0, annotate.Errorf(annotate.NotFound, "gnomad: variant %s not found", l.GnomadID())
		}
	}
	if resp.Data == nil {
		if len(resp.Errors) > 0 {
			return 0, annotate.Errorf(annotate.MalformedResponse, "gnomad: %s", resp.Errors[0].Message)
		}
		return 0, annotate.Errorf(annotate.MalformedResponse, "gnomad: response has no data field")
	}
	v := resp.Data.Variant
	if v == nil {
		return 0, annotate.Errorf(annotate.NotFound, "gnomad: variant %s not found", l.GnomadID())
	}

	var af *float64
	for _, f := range []*frequency{v.Genome, v.Exome} {
		if f != nil && f.AF != nil {
			af = f.AF
			break
		}
	}
	if af == nil {
		return 0, annotate.Errorf(annotate.MalformedResponse, "gnomad: variant %s has no allele frequency", l.GnomadID())
	}
	if math.IsNaN(*af) || *af < 0 || *af > 1 {
		return 0, annotate.Errorf(annotate.MalformedResponse, "gnomad: allele frequency %v out of range", *af)
	}
	return *af, nil
}
