package upload

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMetadataHeader(t *testing.T) {
	tests := []struct {
		name         string
		header       string
		expected     map[string]string
		warningCount int
	}{
		{
			name:     "empty header",
			header:   "",
			expected: map[string]string{},
		},
		{
			name:     "whitespace only",
			header:   "   ",
			expected: map[string]string{},
		},
		{
			name:   "single pair",
			header: "filename " + base64.StdEncoding.EncodeToString([]byte("report.pdf")),
			expected: map[string]string{
				"filename": "report.pdf",
			},
		},
		{
			name: "multiple pairs",
			header: "filename " + base64.StdEncoding.EncodeToString([]byte("report.pdf")) +
				",parentId " + base64.StdEncoding.EncodeToString([]byte("1234")),
			expected: map[string]string{
				"filename": "report.pdf",
				"parentId": "1234",
			},
		},
		{
			name:   "key without value maps to empty string",
			header: "confidential",
			expected: map[string]string{
				"confidential": "",
			},
		},
		{
			name:   "invalid base64 pair dropped with warning",
			header: "filename !!!not-base64!!!,author " + base64.StdEncoding.EncodeToString([]byte("alice")),
			expected: map[string]string{
				"author": "alice",
			},
			warningCount: 1,
		},
		{
			name:   "empty pairs between commas ignored",
			header: ",,filename " + base64.StdEncoding.EncodeToString([]byte("a.txt")) + ",,",
			expected: map[string]string{
				"filename": "a.txt",
			},
		},
		{
			name:   "surrounding whitespace trimmed",
			header: "  filename " + base64.StdEncoding.EncodeToString([]byte("a.txt")) + " , flag ",
			expected: map[string]string{
				"filename": "a.txt",
				"flag":     "",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, warnings := ParseMetadataHeader(tt.header)
			assert.Equal(t, tt.expected, result)
			assert.Len(t, warnings, tt.warningCount)
		})
	}
}

func TestEncodeMetadataHeaderRoundTrip(t *testing.T) {
	metadata := map[string]string{
		"filename": "quarterly report.xlsx",
		"parentId": "e7a1c2d4",
		"flag":     "",
	}

	parsed, warnings := ParseMetadataHeader(EncodeMetadataHeader(metadata))

	assert.Empty(t, warnings)
	assert.Equal(t, metadata, parsed)
}

func TestSessionIDFromMetaPath(t *testing.T) {
	tests := []struct {
		path     string
		expected string
		ok       bool
	}{
		{SessionPrefix + "abc-123.meta", "abc-123", true},
		{SessionPrefix + "abc-123.bin", "", false},
		{SessionPrefix + ".meta", "", false},
		{SessionPrefix + "nested/dir.meta", "", false},
		{"other/abc.meta", "", false},
	}

	for _, tt := range tests {
		id, ok := SessionIDFromMetaPath(tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.expected, id, tt.path)
	}
}
