package schema

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrSyntax is returned when a schema document does not have the expected
// shape.
var ErrSyntax = errors.New("invalid schema document")

const commandMarker = "command"

// Parse reads a schema from a YAML document. JSON documents are valid YAML
// and are accepted too.
//
// The top level must be a mapping. Within a mapping, a value that is itself
// a mapping declares a namespace, and a value that is null or the string
// "command" declares a command. A sequence value declares a namespace whose
// items are command names or single-key mappings of nested namespaces:
//
//	System:
//	  Ping: command
//	  Power: [Shutdown, Reboot]
//	Player:
//	  - GetActivePlayers
//	  - Playlist: [Add, Clear]
func Parse(data []byte) (*Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	if doc.Kind == 0 {
		// Empty document.
		return New("")
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: line %d: top level must be a mapping", ErrSyntax, root.Line)
	}
	entries, err := mappingEntries(root)
	if err != nil {
		return nil, err
	}
	return New("", entries...)
}

// Load reads and parses the schema file at path.
func Load(path string) (*Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	n, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

func mappingEntries(m *yaml.Node) ([]Entry, error) {
	entries := make([]Entry, 0, len(m.Content)/2)
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, value := m.Content[i], m.Content[i+1]
		if key.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: line %d: keys must be names", ErrSyntax, key.Line)
		}
		e, err := valueEntry(key.Value, value)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func valueEntry(name string, value *yaml.Node) (Entry, error) {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" || value.Value == commandMarker {
			return Command(name), nil
		}
		return Entry{}, fmt.Errorf("%w: line %d: %q: unexpected value %q", ErrSyntax, value.Line, name, value.Value)
	case yaml.MappingNode:
		children, err := mappingEntries(value)
		if err != nil {
			return Entry{}, err
		}
		return Namespace(name, children...), nil
	case yaml.SequenceNode:
		children, err := sequenceEntries(value)
		if err != nil {
			return Entry{}, err
		}
		return Namespace(name, children...), nil
	default:
		return Entry{}, fmt.Errorf("%w: line %d: %q: unsupported value", ErrSyntax, value.Line, name)
	}
}

func sequenceEntries(s *yaml.Node) ([]Entry, error) {
	entries := make([]Entry, 0, len(s.Content))
	for _, item := range s.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			entries = append(entries, Command(item.Value))
		case yaml.MappingNode:
			if len(item.Content) != 2 {
				return nil, fmt.Errorf("%w: line %d: sequence mappings must have exactly one key", ErrSyntax, item.Line)
			}
			nested, err := mappingEntries(item)
			if err != nil {
				return nil, err
			}
			entries = append(entries, nested...)
		default:
			return nil, fmt.Errorf("%w: line %d: unsupported sequence item", ErrSyntax, item.Line)
		}
	}
	return entries, nil
}
