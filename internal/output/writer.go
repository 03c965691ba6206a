package output

import (
	"fmt"
	"io"

	"github.com/inodb/cardiovar/internal/annotate"
)

// Formats lists the supported output formats.
var Formats = []string{"tab", "json", "yaml", "vcf"}

// NewWriter returns a result writer for the named format.
func NewWriter(format string, w io.Writer) (annotate.ResultWriter, error) {
	switch format {
	case "tab":
		return NewTabWriter(w), nil
	case "json":
		return NewJSONWriter(w, ""), nil
	case "yaml":
		return NewYAMLWriter(w), nil
	case "vcf":
		return NewVCFWriter(w, nil), nil
	}
	return nil, fmt.Errorf("unknown output format %q (want one of %v)", format, Formats)
}
