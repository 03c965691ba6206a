// Package clinvar is the clinical variant source.
//
// The ClinVar integration is not implemented: ClinicalVariants always returns
// an empty list without network access, and the fetcher resolves clinical
// context from the bundled related-variant data.
package clinvar

import (
	"context"

	"github.com/inodb/cardiovar/internal/annotate"
	"github.com/inodb/cardiovar/internal/genome"
)

// Client is a ClinicalSource placeholder.
type Client struct{}

// New creates a ClinVar placeholder client.
func New() *Client {
	return &Client{}
}

// ClinicalVariants returns an empty list for every locus.
func (c *Client) ClinicalVariants(ctx context.Context, l genome.Locus) ([]annotate.ClinicalRecord, error) {
	return []annotate.ClinicalRecord{}, nil
}
