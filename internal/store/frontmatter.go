package store

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

var (
	errMissingFrontmatter = errors.New("missing frontmatter")
	errUnterminated       = errors.New("unterminated frontmatter")
)

// parseFrontmatter decodes the YAML block between the leading "---" fences
// into meta and returns the remaining body. One blank line after the closing
// fence is dropped.
func parseFrontmatter(content []byte, meta any) (string, error) {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return "", errMissingFrontmatter
	}
	rest := normalized[4:]
	if bytes.HasSuffix(rest, []byte("\n---")) {
		rest = append(rest, '\n')
	}
	var head, body []byte
	if bytes.HasPrefix(rest, []byte("---\n")) {
		head, body = nil, rest[4:]
	} else {
		parts := bytes.SplitN(rest, []byte("\n---\n"), 2)
		if len(parts) < 2 {
			return "", errUnterminated
		}
		head, body = parts[0], parts[1]
	}
	if err := yaml.Unmarshal(head, meta); err != nil {
		return "", fmt.Errorf("parse frontmatter: %w", err)
	}
	return string(bytes.TrimPrefix(body, []byte("\n"))), nil
}

// renderFrontmatter encodes meta between "---" fences followed by the body.
func renderFrontmatter(meta any, body string) ([]byte, error) {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(bytes.TrimRight(data, "\n"))
	buf.WriteString("\n---\n")
	if body != "" {
		buf.WriteString("\n")
		buf.WriteString(body)
	}
	return buf.Bytes(), nil
}
