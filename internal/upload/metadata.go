package upload

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Well-known metadata keys clients send with a new session
const (
	MetadataKeyFilename = "filename"
	MetadataKeyParentID = "parentId"
)

// ParseMetadataHeader parses the client-supplied upload metadata header: a
// comma-separated list of `key base64(value)` pairs. A key with no value maps
// to the empty string. Malformed pairs are dropped and reported as warnings,
// never as errors; this header is optional protocol metadata and must not be
// able to fail a request.
func ParseMetadataHeader(header string) (map[string]string, []string) {
	result := make(map[string]string)
	var warnings []string

	if strings.TrimSpace(header) == "" {
		return result, nil
	}

	for _, pair := range strings.Split(header, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		parts := strings.SplitN(pair, " ", 2)
		key := strings.TrimSpace(parts[0])
		if key == "" {
			warnings = append(warnings, fmt.Sprintf("metadata pair %q has no key", pair))
			continue
		}

		if len(parts) == 1 {
			result[key] = ""
			continue
		}

		value, err := base64.StdEncoding.DecodeString(strings.TrimSpace(parts[1]))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("invalid base64 in metadata pair %q", pair))
			continue
		}
		result[key] = string(value)
	}

	return result, warnings
}

// EncodeMetadataHeader builds the wire form of a metadata map, mainly for tests
// and clients embedded in this repo
func EncodeMetadataHeader(metadata map[string]string) string {
	pairs := make([]string, 0, len(metadata))
	for key, value := range metadata {
		if value == "" {
			pairs = append(pairs, key)
			continue
		}
		pairs = append(pairs, key+" "+base64.StdEncoding.EncodeToString([]byte(value)))
	}
	return strings.Join(pairs, ",")
}
