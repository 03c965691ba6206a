package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/inodb/cardiovar/internal/annotate"
)

func TestJSONWriter_OneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf, "")

	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.Write(nil, sampleResult()))
	require.NoError(t, w.Write(nil, sampleResult()))
	require.NoError(t, w.Flush())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &doc))
	assert.Equal(t, "MYH9", doc["gene"])
	assert.Equal(t, true, doc["gene_inferred"])

	variant := doc["variant"].(map[string]any)
	assert.Equal(t, "22", variant["chrom"])
	assert.Equal(t, float64(36191400), variant["pos"])

	annotations := doc["annotations"].(map[string]any)
	assert.Len(t, annotations, len(annotate.AllSources))

	freq := annotations["population_frequency"].(map[string]any)
	assert.Equal(t, "live", freq["provenance"])
	assert.Equal(t, 0.00005, freq["value"])

	clin := annotations["clinical_variants"].(map[string]any)
	assert.Equal(t, "unavailable", clin["provenance"])
	assert.NotContains(t, clin, "value")
	assert.Contains(t, clin["reason"], "not_found")

	gene := annotations["gene_info"].(map[string]any)
	assert.Equal(t, "fallback", gene["provenance"])
	assert.Contains(t, gene["reason"], "network_failure")
}

func TestJSONWriter_Indent(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf, "  ")
	require.NoError(t, w.Write(nil, sampleResult()))
	require.NoError(t, w.Flush())

	assert.Contains(t, buf.String(), "\n  \"annotations\"")
}

func TestYAMLWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewYAMLWriter(&buf)

	require.NoError(t, w.Write(nil, sampleResult()))
	require.NoError(t, w.Write(nil, sampleResult()))
	require.NoError(t, w.Flush())

	dec := yaml.NewDecoder(strings.NewReader(buf.String()))
	count := 0
	for {
		var doc map[string]any
		if err := dec.Decode(&doc); err != nil {
			break
		}
		count++
		annotations := doc["annotations"].(map[string]any)
		assert.Len(t, annotations, len(annotate.AllSources))
		seq := annotations["sequence"].(map[string]any)
		assert.Equal(t, "live", seq["provenance"])
		assert.Equal(t, "ACGTACGT", seq["value"])
	}
	assert.Equal(t, 2, count)
}

func TestNewWriter(t *testing.T) {
	for _, f := range Formats {
		w, err := NewWriter(f, &bytes.Buffer{})
		require.NoError(t, err)
		assert.NotNil(t, w)
	}

	_, err := NewWriter("maf", &bytes.Buffer{})
	assert.Error(t, err)
}
