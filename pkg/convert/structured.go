package convert

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// csvRecords splits input into comma-separated records. Quoted fields are
// honoured, but a stray quote inside an unquoted field is kept literally.
// Rows may have any number of fields.
func csvRecords(input string) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(input))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

// csvToJSON treats the first record as headers and emits one object per
// following record, keys in header order. Short rows are filled with "",
// surplus cells are dropped, and a header-only document yields [].
func csvToJSON(input string) (string, error) {
	records, err := csvRecords(input)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "[]", nil
	}

	headers := records[0]
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range records[1:] {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, h := range headers {
			if j > 0 {
				buf.WriteByte(',')
			}
			value := ""
			if j < len(row) {
				value = row[j]
			}
			if err := writeJSONString(&buf, h); err != nil {
				return "", err
			}
			buf.WriteByte(':')
			if err := writeJSONString(&buf, value); err != nil {
				return "", err
			}
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.String(), nil
}

// writeJSONString appends s as a JSON string literal without HTML escaping.
func writeJSONString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode terminates every value with a newline
	buf.Truncate(buf.Len() - 1)
	return nil
}

// csvToText checks the document parses and returns it unchanged.
func csvToText(input string) (string, error) {
	if _, err := csvRecords(input); err != nil {
		return "", err
	}
	return input, nil
}

var errInvalidJSON = errors.New("payload is not valid JSON")

// jsonToText pretty-prints the document with two-space indentation.
func jsonToText(input string) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(input), "", "  "); err != nil {
		return "", err
	}
	buf.WriteByte('\n')
	return buf.String(), nil
}

// jsonToYAML re-emits a JSON document as block-style YAML. Object key order
// is preserved: the document is decoded into a yaml.Node tree (JSON is a
// subset of YAML) rather than a Go map.
func jsonToYAML(input string) (string, error) {
	if !json.Valid([]byte(input)) {
		return "", errInvalidJSON
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(input), &doc); err != nil {
		return "", err
	}
	resetStyle(&doc)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// resetStyle clears the flow and quoting styles picked up from JSON syntax.
// The encoder still quotes any string that would otherwise resolve to a
// different type.
func resetStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		resetStyle(c)
	}
}

// yamlToJSON converts the first YAML document to indented JSON, keeping
// mapping key order.
func yamlToJSON(input string) (string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(input), &doc); err != nil {
		return "", err
	}

	var compact bytes.Buffer
	if err := writeYAMLNode(&compact, &doc, 0); err != nil {
		return "", err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "  "); err != nil {
		return "", err
	}
	out.WriteByte('\n')
	return out.String(), nil
}

// maxAliasDepth bounds alias expansion.
const maxAliasDepth = 64

func writeYAMLNode(w *bytes.Buffer, n *yaml.Node, depth int) error {
	if depth > maxAliasDepth {
		return fmt.Errorf("yaml nesting exceeds %d levels", maxAliasDepth)
	}

	switch n.Kind {
	case 0:
		// Empty input
		w.WriteString("null")
		return nil

	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			w.WriteString("null")
			return nil
		}
		return writeYAMLNode(w, n.Content[0], depth+1)

	case yaml.AliasNode:
		return writeYAMLNode(w, n.Alias, depth+1)

	case yaml.SequenceNode:
		w.WriteByte('[')
		for i, c := range n.Content {
			if i > 0 {
				w.WriteByte(',')
			}
			if err := writeYAMLNode(w, c, depth+1); err != nil {
				return err
			}
		}
		w.WriteByte(']')
		return nil

	case yaml.MappingNode:
		w.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, value := n.Content[i], n.Content[i+1]
			if key.Kind == yaml.AliasNode {
				key = key.Alias
			}
			if key.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: mapping keys must be scalars", key.Line)
			}
			if i > 0 {
				w.WriteByte(',')
			}
			if err := writeJSONString(w, key.Value); err != nil {
				return err
			}
			w.WriteByte(':')
			if err := writeYAMLNode(w, value, depth+1); err != nil {
				return err
			}
		}
		w.WriteByte('}')
		return nil

	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return err
		}
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		w.Write(b)
		return nil

	default:
		return fmt.Errorf("unsupported yaml node kind %d", n.Kind)
	}
}

// yamlToText checks the document parses and returns it unchanged.
func yamlToText(input string) (string, error) {
	dec := yaml.NewDecoder(strings.NewReader(input))
	for {
		var n yaml.Node
		err := dec.Decode(&n)
		if errors.Is(err, io.EOF) {
			return input, nil
		}
		if err != nil {
			return "", err
		}
	}
}
