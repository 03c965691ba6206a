// Package gtex fetches median tissue expression from the GTEx Portal API.
package gtex

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/inodb/cardiovar/internal/annotate"
	"github.com/inodb/cardiovar/internal/rest"
)

// Defaults for the public GTEx endpoint.
const (
	DefaultURL     = "https://gtexportal.org/rest/v1"
	DefaultDataset = "gtex_v8"
	DefaultTimeout = 10 * time.Second
)

// Tissue maps a GTEx tissue site identifier to its display name.
type Tissue struct {
	ID   string
	Name string
}

// Tissues is the fixed set of tissues requested, in display order.
var Tissues = []Tissue{
	{ID: "Heart_Left_Ventricle", Name: "Heart LV"},
	{ID: "Heart_Atrial_Appendage", Name: "Heart RA"},
	{ID: "Artery_Aorta", Name: "Aorta"},
	{ID: "Artery_Coronary", Name: "Coronary Artery"},
	{ID: "Liver", Name: "Liver"},
	{ID: "Brain_Cortex", Name: "Brain"},
	{ID: "Kidney_Cortex", Name: "Kidney"},
}

var tissueNames = func() map[string]string {
	m := make(map[string]string, len(Tissues))
	for _, t := range Tissues {
		m[t.ID] = t.Name
	}
	return m
}()

// TissueName returns the display name for a GTEx tissue identifier.
func TissueName(id string) (string, bool) {
	name, ok := tissueNames[id]
	return name, ok
}

// Client is an ExpressionSource backed by GTEx.
type Client struct {
	rest    *rest.Client
	baseURL string
	dataset string
	timeout time.Duration
}

// New creates a GTEx client. An empty baseURL or zero timeout selects the default.
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
		dataset: DefaultDataset,
		timeout: timeout,
	}
}

type medianResponse struct {
	MedianGeneExpression *[]struct {
		TissueSiteDetailID string   `json:"tissueSiteDetailId"`
		Median             *float64 `json:"median"`
	} `json:"medianGeneExpression"`
}

// TissueExpression returns the median TPM of a gene in each recognised tissue.
// Tissues without a median are dropped; a response with no recognised tissue
// yields an empty, non-nil slice.
func (c *Client) TissueExpression(ctx context.Context, symbol string) ([]annotate.TissueExpression, error) {
	q := url.Values{}
	q.Set("geneId", symbol)
	q.Set("datasetId", c.dataset)
	for _, t := range Tissues {
		q.Add("tissueSiteDetailId", t.ID)
	}
	u := c.baseURL + "/expression/medianGeneExpression?" + q.Encode()

	var resp medianResponse
	if err := c.rest.GetJSON(ctx, u, c.timeout, &resp); err != nil {
		return nil, annotate.Wrap(err)
	}
	if resp.MedianGeneExpression == nil {
		return nil, annotate.Errorf(annotate.MalformedResponse, "gtex: response has no medianGeneExpression field")
	}

	out := []annotate.TissueExpression{}
	for _, item := range *resp.MedianGeneExpression {
		name, ok := TissueName(item.TissueSiteDetailID)
		if !ok || item.Median == nil {
			continue
		}
		out = append(out, annotate.TissueExpression{Tissue: name, TPM: *item.Median})
	}
	return out, nil
}
