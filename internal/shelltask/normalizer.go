package shelltask

import (
	"bytes"
	"regexp"
)

// OutputNormalizer removes nondeterministic data from captured output before
// it is hashed or cached, so two runs of the same command produce bit-for-bit
// identical artifacts.
type OutputNormalizer interface {
	Normalize(content []byte) []byte
}

type normPattern struct {
	regex       *regexp.Regexp
	replacement []byte
}

// DefaultNormalizer strips timestamps, durations, pids and addresses — the
// common sources of run-to-run noise in shell command output.
type DefaultNormalizer struct {
	patterns []*normPattern
}

// NewDefaultNormalizer returns a DefaultNormalizer with the standard pattern
// set.
func NewDefaultNormalizer() *DefaultNormalizer {
	return &DefaultNormalizer{
		patterns: []*normPattern{
			{regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?`), []byte("<TIMESTAMP>")},
			{regexp.MustCompile(`\d{4}[-/]\d{2}[-/]\d{2}\s+\d{2}:\d{2}:\d{2}(\.\d+)?`), []byte("<TIMESTAMP>")},
			{regexp.MustCompile(`\b1[0-9]{9,12}\b`), []byte("<UNIX_TS>")},
			{regexp.MustCompile(`\b\d+(\.\d+)?\s*(ms|s|seconds?|minutes?|hours?)\b`), []byte("<DURATION>")},
			{regexp.MustCompile(`\b[Pp][Ii][Dd][:\s]*\d+\b`), []byte("pid <PID>")},
			{regexp.MustCompile(`0x[0-9a-fA-F]{8,16}`), []byte("<ADDR>")},
		},
	}
}

func (n *DefaultNormalizer) Normalize(content []byte) []byte {
	result := content
	for _, p := range n.patterns {
		result = p.regex.ReplaceAll(result, p.replacement)
	}
	return result
}

// RawNormalizer preserves content unchanged.
type RawNormalizer struct{}

func (RawNormalizer) Normalize(content []byte) []byte { return content }

// StreamNormalizer converts CRLF to LF, then applies Inner if set.
type StreamNormalizer struct {
	Inner OutputNormalizer
}

func (n StreamNormalizer) Normalize(content []byte) []byte {
	result := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if n.Inner != nil {
		result = n.Inner.Normalize(result)
	}
	return result
}
