package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/cardiovar/internal/annotate"
	"github.com/inodb/cardiovar/internal/vcf"
)

func TestVCFWriter_Header(t *testing.T) {
	headers := []string{
		"##fileformat=VCFv4.2",
		"##reference=GRCh38",
		"##INFO=<ID=DP,Number=1,Type=Integer,Description=\"Total Depth\">",
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO",
	}

	var buf bytes.Buffer
	w := NewVCFWriter(&buf, headers)
	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.Flush())

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")

	// Original ## lines preserved
	assert.Equal(t, "##fileformat=VCFv4.2", lines[0])
	assert.Equal(t, "##reference=GRCh38", lines[1])

	chromIdx := len(lines) - 1
	assert.True(t, strings.HasPrefix(lines[chromIdx], "#CHROM"))

	// One INFO line per source, all before #CHROM
	for _, s := range annotate.AllSources {
		idx := -1
		for i, line := range lines {
			if strings.HasPrefix(line, "##INFO=<ID="+InfoKey(s)+",") {
				idx = i
			}
		}
		require.GreaterOrEqual(t, idx, 0, "missing INFO line for %s", s)
		assert.Less(t, idx, chromIdx)
	}
}

func TestVCFWriter_DefaultHeader(t *testing.T) {
	var buf bytes.Buffer
	w := NewVCFWriter(&buf, nil)
	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.Flush())

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "##fileformat=VCFv4.2\n"))
	assert.Contains(t, out, "\n#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n")
}

func TestVCFWriter_Write(t *testing.T) {
	var buf bytes.Buffer
	w := NewVCFWriter(&buf, nil)
	require.NoError(t, w.Write(nil, sampleResult()))
	require.NoError(t, w.Flush())

	fields := strings.Split(strings.TrimRight(buf.String(), "\n"), "\t")
	require.Len(t, fields, 8)
	assert.Equal(t, []string{"22", "36191400", ".", "A", "C", ".", "."}, fields[:7])

	info := map[string]string{}
	for _, kv := range strings.Split(fields[7], ";") {
		k, v, _ := strings.Cut(kv, "=")
		info[k] = v
	}

	assert.Equal(t, "MYH9", info["CV_GENE"])
	assert.Contains(t, info, "CV_GENE_INFERRED")
	assert.Contains(t, info, "CV_FALLBACK")
	assert.Equal(t, "live|5e-05", info["CV_population_frequency"])
	assert.Equal(t, "unavailable", info["CV_clinical_variants"])
	// Spaces are percent-encoded.
	assert.Equal(t, "live|Heart%20LV%3D12.40", info["CV_tissue_expression"])
	assert.True(t, strings.HasPrefix(info["CV_gene_info"], "fallback|MYH9(ENSG00000100345)%2Cprotein_coding"))
}

func TestVCFWriter_KeepsInputColumns(t *testing.T) {
	in := "##fileformat=VCFv4.2\n" +
		"##INFO=<ID=DP,Number=1,Type=Integer,Description=\"Total Depth\">\n" +
		"##INFO=<ID=CV_population_frequency,Number=1,Type=String,Description=\"old\">\n" +
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n" +
		"chr22\t36191400\trs12345\tA\tC\t50\tPASS\tDP=10;GENE=MYH9;CV_sequence=live|3bp\n"
	parser, err := vcf.NewParserFromReader(strings.NewReader(in))
	require.NoError(t, err)
	rec, err := parser.Next()
	require.NoError(t, err)
	require.NotNil(t, rec)

	var buf bytes.Buffer
	w := NewVCFWriter(&buf, parser.Header())
	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.Write(rec, sampleResult()))
	require.NoError(t, w.Flush())

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "##INFO=<ID=CV_population_frequency,"))
	assert.Contains(t, out, "##INFO=<ID=DP,")

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	fields := strings.Split(lines[len(lines)-1], "\t")
	require.Len(t, fields, 8)
	assert.Equal(t, []string{"chr22", "36191400", "rs12345", "A", "C", "50", "PASS"}, fields[:7])
	assert.True(t, strings.HasPrefix(fields[7], "DP=10;GENE=MYH9;CV_GENE=MYH9;"), fields[7])
	assert.Equal(t, 1, strings.Count(fields[7], "CV_sequence="))
	assert.NotContains(t, fields[7], "live|3bp")
}

func TestVCFWriter_EmptyInputInfo(t *testing.T) {
	rec := &vcf.Record{ID: "rs1", Qual: ".", Filter: "PASS", RawInfo: "."}
	rec.Locus = sampleResult().Locus

	var buf bytes.Buffer
	w := NewVCFWriter(&buf, nil)
	require.NoError(t, w.Write(rec, sampleResult()))
	require.NoError(t, w.Flush())

	fields := strings.Split(strings.TrimRight(buf.String(), "\n"), "\t")
	require.Len(t, fields, 8)
	assert.Equal(t, "rs1", fields[2])
	assert.True(t, strings.HasPrefix(fields[7], "CV_GENE=MYH9;"), fields[7])
}
