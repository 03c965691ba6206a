// Package ucsc fetches conservation scores and reference sequence from the
// UCSC Genome Browser REST API.
package ucsc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/inodb/cardiovar/internal/annotate"
	"github.com/inodb/cardiovar/internal/genome"
	"github.com/inodb/cardiovar/internal/rest"
)

// Defaults for the public UCSC endpoint.
const (
	DefaultURL                 = "https://api.genome.ucsc.edu"
	DefaultGenome              = "hg38"
	DefaultTrack               = "phyloP100way"
	DefaultConservationTimeout = 15 * time.Second
	DefaultSequenceTimeout     = 30 * time.Second
)

// Client is both a ConservationSource and a SequenceSource.
type Client struct {
	rest                *rest.Client
	baseURL             string
	genome              string
	track               string
	conservationTimeout time.Duration
	sequenceTimeout     time.Duration
}

// New creates a UCSC client with the default genome, track and timeouts.
func New(c *rest.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		rest:                c,
		baseURL:             strings.TrimRight(baseURL, "/"),
		genome:              DefaultGenome,
		track:               DefaultTrack,
		conservationTimeout: DefaultConservationTimeout,
		sequenceTimeout:     DefaultSequenceTimeout,
	}
}

// SetTimeouts sets the per-call deadlines. Zero keeps the current value.
func (c *Client) SetTimeouts(conservation, sequence time.Duration) {
	if conservation > 0 {
		c.conservationTimeout = conservation
	}
	if sequence > 0 {
		c.sequenceTimeout = sequence
	}
}

func (c *Client) endpoint(path string, iv genome.Interval, extra url.Values) string {
	q := url.Values{}
	q.Set("genome", c.genome)
	q.Set("chrom", iv.UCSCChrom())
	q.Set("start", strconv.FormatInt(iv.Start, 10))
	q.Set("end", strconv.FormatInt(iv.End, 10))
	for k, v := range extra {
		q[k] = v
	}
	return c.baseURL + path + "?" + q.Encode()
}

type scoreItem struct {
	Value *float64 `json:"value"`
}

// Conservation returns one phyloP score per base of the interval.
// Null items and items without a value score 0.0.
func (c *Client) Conservation(ctx context.Context, iv genome.Interval) ([]float64, error) {
	u := c.endpoint("/getData/track", iv, url.Values{"track": {c.track}})

	var resp map[string]json.RawMessage
	if err := c.rest.GetJSON(ctx, u, c.conservationTimeout, &resp); err != nil {
		return nil, annotate.Wrap(err)
	}

	raw, ok := resp[c.track]
	if !ok {
		return nil, annotate.Errorf(annotate.MalformedResponse, "ucsc: response has no %s field", c.track)
	}
	items, err := decodeItems(raw, iv.UCSCChrom())
	if err != nil {
		return nil, err
	}

	if int64(len(items)) != iv.Width() {
		return nil, annotate.Errorf(annotate.ShapeMismatch,
			"ucsc: got %d scores for %s, want %d", len(items), iv.Key(), iv.Width())
	}

	scores := make([]float64, len(items))
	for i, it := range items {
		if it != nil && it.Value != nil {
			scores[i] = *it.Value
		}
	}
	return scores, nil
}

// decodeItems accepts the track as a flat list or as a list keyed by chromosome.
func decodeItems(raw json.RawMessage, chrom string) ([]*scoreItem, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, annotate.Errorf(annotate.MalformedResponse, "ucsc: empty track data")
	}

	switch trimmed[0] {
	case '[':
		var items []*scoreItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, annotate.Errorf(annotate.MalformedResponse, "ucsc: decode track list: %v", err)
		}
		return items, nil
	case '{':
		var byChrom map[string][]*scoreItem
		if err := json.Unmarshal(trimmed, &byChrom); err != nil {
			return nil, annotate.Errorf(annotate.MalformedResponse, "ucsc: decode track object: %v", err)
		}
		if items, ok := byChrom[chrom]; ok {
			return items, nil
		}
		if len(byChrom) == 1 {
			for _, items := range byChrom {
				return items, nil
			}
		}
		return nil, annotate.Errorf(annotate.MalformedResponse, "ucsc: track has no data for %s", chrom)
	}
	return nil, annotate.Errorf(annotate.MalformedResponse, "ucsc: unrecognised track shape")
}

// Sequence returns the upper-cased reference sequence of the interval.
func (c *Client) Sequence(ctx context.Context, iv genome.Interval) (string, error) {
	u := c.endpoint("/getData/sequence", iv, nil)

	var resp struct {
		DNA *string `json:"dna"`
	}
	if err := c.rest.GetJSON(ctx, u, c.sequenceTimeout, &resp); err != nil {
		return "", annotate.Wrap(err)
	}
	if resp.DNA == nil {
		return "", annotate.Errorf(annotate.MalformedResponse, "ucsc: response has no dna field")
	}
	if *resp.DNA == "" {
		return "", annotate.Errorf(annotate.NotFound, "ucsc: empty sequence for %s", iv.Key())
	}
	return strings.ToUpper(*resp.DNA), nil
}
