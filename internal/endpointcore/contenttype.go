package endpointcore

import "encoding/json"

const (
	contentTypeJSON  = "application/json"
	contentTypeOctet = "application/octet-stream"
)

// ProbeContentType implements §4.7's content-type mapping: the provided
// value wins verbatim when non-empty, otherwise the body is sniffed as
// JSON, falling back to octet-stream.
func ProbeContentType(provided string, body []byte) string {
	if provided != "" {
		return provided
	}
	if json.Valid(body) {
		return contentTypeJSON
	}
	return contentTypeOctet
}
