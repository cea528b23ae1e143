package storage

import (
	"net/http"
	"strings"
)

// FilterHeaders copies the allow-listed headers (x-* prefixed plus
// content-type) out of an inbound header set. Names are lowercased, values
// copied verbatim. The allow-list prevents header injection through cached
// responses.
func FilterHeaders(in http.Header) map[string]string {
	out := make(map[string]string)
	for name, values := range in {
		if len(values) == 0 {
			continue
		}
		lower := strings.ToLower(name)
		if lower == "content-type" || strings.HasPrefix(lower, "x-") {
			out[lower] = values[0]
		}
	}
	return out
}
