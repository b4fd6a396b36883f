package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// document is the on-disk YAML form. Fields is kept as a node so that the
// declaration order survives decoding.
type document struct {
	Entity string    `yaml:"entity"`
	ID     string    `yaml:"id"`
	Fields yaml.Node `yaml:"fields"`
}

// ParseFile parses a schema definition from a YAML file.
func ParseFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse parses a schema definition from YAML bytes.
func Parse(data []byte) (*Schema, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	fields, err := decodeFields(&doc.Fields)
	if err != nil {
		return nil, fmt.Errorf("parse schema %q: %w", doc.Entity, err)
	}

	s, err := New(doc.Entity, doc.ID, fields...)
	if err != nil {
		return nil, fmt.Errorf("validate schema %q: %w", doc.Entity, err)
	}

	return s, nil
}

func decodeFields(node *yaml.Node) ([]Field, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: fields must be a mapping", node.Line)
	}

	fields := make([]Field, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]

		var f Field
		if err := value.Decode(&f); err != nil {
			return nil, fmt.Errorf("field %q: %w", key.Value, err)
		}
		f.Name = key.Value
		fields = append(fields, f)
	}

	return fields, nil
}
