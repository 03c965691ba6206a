package output

import (
	"bufio"
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/inodb/cardiovar/internal/annotate"
	"github.com/inodb/cardiovar/internal/vcf"
)

// JSONWriter writes results as JSON, one object per line unless indented.
type JSONWriter struct {
	w   *bufio.Writer
	enc *json.Encoder
}

// NewJSONWriter creates a JSON writer. A non-empty indent pretty-prints each result.
func NewJSONWriter(w io.Writer, indent string) *JSONWriter {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return &JSONWriter{w: bw, enc: enc}
}

// WriteHeader is a no-op; JSON output has no header.
func (jw *JSONWriter) WriteHeader() error { return nil }

// Write writes a single result.
func (jw *JSONWriter) Write(_ *vcf.Record, r *annotate.Result) error {
	return jw.enc.Encode(r)
}

// Flush flushes any buffered data to the underlying writer.
func (jw *JSONWriter) Flush() error {
	return jw.w.Flush()
}

// YAMLWriter writes results as a stream of YAML documents.
type YAMLWriter struct {
	w   io.Writer
	enc *yaml.Encoder
}

// NewYAMLWriter creates a YAML writer.
func NewYAMLWriter(w io.Writer) *YAMLWriter {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return &YAMLWriter{w: w, enc: enc}
}

// WriteHeader is a no-op; YAML output has no header.
func (yw *YAMLWriter) WriteHeader() error { return nil }

// Write writes a single result as its own document.
func (yw *YAMLWriter) Write(_ *vcf.Record, r *annotate.Result) error {
	return yw.enc.Encode(r)
}

// Flush finishes the document stream.
func (yw *YAMLWriter) Flush() error {
	return yw.enc.Close()
}
