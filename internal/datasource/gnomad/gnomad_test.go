package gnomad

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/cardiovar/internal/annotate"
	"github.com/inodb/cardiovar/internal/genome"
	"github.com/inodb/cardiovar/internal/rest"
)

var myh9 = genome.Locus{Chrom: "chr22", Pos: 36191400, Ref: "A", Alt: "C"}

func newServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "22-36191400-A-C", req.Variables["variantId"])
		assert.Equal(t, DefaultDataset, req.Variables["dataset"])
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAlleleFrequency(t *testing.T) {
	tests := []struct {
		name string
		body string
		want float64
	}{
		{"genome", `{"data":{"variant":{"variant_id":"22-36191400-A-C","genome":{"af":0.00005},"exome":{"af":0.2}}}}`, 0.00005},
		{"exome only", `{"data":{"variant":{"genome":null,"exome":{"af":0.003}}}}`, 0.003},
		{"genome af null", `{"data":{"variant":{"genome":{"af":null},"exome":{"af":0.5}}}}`, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, tt.body)
			c := New(rest.NewClient(rest.Options{}), srv.URL, 0)

			af, err := c.AlleleFrequency(context.Background(), myh9)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, af, 1e-12)
		})
	}
}

func TestAlleleFrequency_Failures(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind annotate.Kind
	}{
		{"variant null", `{"data":{"variant":null}}`, annotate.NotFound},
		{"not found error", `{"data":null,"errors":[{"message":"Variant not found"}]}`, annotate.NotFound},
		{"other graphql error", `{"errors":[{"message":"Unknown dataset"}]}`, annotate.MalformedResponse},
		{"no data", `{}`, annotate.MalformedResponse},
		{"no frequency", `{"data":{"variant":{"genome":null,"exome":null}}}`, annotate.MalformedResponse},
		{"out of range", `{"data":{"variant":{"genome":{"af":1.5}}}}`, annotate.MalformedResponse},
		{"not json", `<html>`, annotate.MalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, tt.body)
			c := New(rest.NewClient(rest.Options{}), srv.URL, 0)

			_, err := c.AlleleFrequency(context.Background(), myh9)
			require.Error(t, err)
			assert.Equal(t, tt.kind, annotate.Classify(err))
		})
	}
}

func TestAlleleFrequency_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(rest.NewClient(rest.Options{}), srv.URL, 0)
	_, err := c.AlleleFrequency(context.Background(), myh9)
	require.Error(t, err)
	assert.Equal(t, annotate.NetworkFailure, annotate.Classify(err))
}

func TestAlleleFrequency_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := New(rest.NewClient(rest.Options{}), srv.URL, 50*time.Millisecond)
	start := time.Now()
	_, err := c.AlleleFrequency(context.Background(), myh9)
	require.Error(t, err)
	assert.Equal(t, annotate.NetworkFailure, annotate.Classify(err))
	assert.Less(t, time.Since(start), time.Second)
}
