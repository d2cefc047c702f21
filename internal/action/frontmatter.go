package action

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// splitFrontmatter separates a leading "---" delimited YAML block from the
// rest of a markdown document. ok is false when there is no such block.
func splitFrontmatter(content string) (front, body string, ok bool) {
	lines := strings.SplitAfter(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", content, false
	}

	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[1:i], ""), strings.Join(lines[i+1:], ""), true
		}
	}
	return "", content, false
}

// bumpIntField adds delta to the integer field key of a frontmatter block,
// creating the field when absent. Other keys keep their order and comments.
// A missing or non-numeric value counts as zero.
func bumpIntField(front, key string, delta int) (updated string, before, after int, err error) {
	var doc yaml.Node
	if strings.TrimSpace(front) != "" {
		if err := yaml.Unmarshal([]byte(front), &doc); err != nil {
			return "", 0, 0, fmt.Errorf("failed to parse frontmatter: %w", err)
		}
	}

	var mapping *yaml.Node
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 && doc.Content[0].Kind == yaml.MappingNode {
		mapping = doc.Content[0]
	} else {
		mapping = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{mapping}}
	}

	var value *yaml.Node
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			value = mapping.Content[i+1]
			break
		}
	}

	if value != nil && value.Kind == yaml.ScalarNode {
		if n, convErr := strconv.Atoi(strings.TrimSpace(value.Value)); convErr == nil {
			before = n
		}
	}
	after = before + delta

	next := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(after)}
	if value == nil {
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			next,
		)
	} else {
		next.LineComment = value.LineComment
		*value = *next
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", 0, 0, fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", 0, 0, fmt.Errorf("failed to encode frontmatter: %w", err)
	}

	return buf.String(), before, after, nil
}

// joinFrontmatter rebuilds a document from a YAML block and a body
func joinFrontmatter(front, body string) string {
	if !strings.HasSuffix(front, "\n") {
		front += "\n"
	}
	return "---\n" + front + "---\n" + body
}
