// Package schema describes the method namespace of a JSON-RPC service.
//
// A schema is an immutable tree. Each Node is a namespace whose children are
// either commands (invocable methods) or nested namespaces:
//
//	root := schema.MustNew("",
//	    schema.Namespace("System",
//	        schema.Command("Ping"),
//	        schema.Namespace("Power", schema.Command("Shutdown")),
//	    ),
//	)
//
// The fully-qualified method names described by root are "System.Ping" and
// "System.Power.Shutdown". Schemas can also be loaded from YAML or JSON
// documents with Parse and Load.
//
// Nodes are never mutated after construction and may be shared freely
// between clients and goroutines.
package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind identifies what a child name refers to.
type Kind int

const (
	// KindCommand marks a leaf method.
	KindCommand Kind = iota + 1
	// KindNamespace marks a nested namespace.
	KindNamespace
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindNamespace:
		return "namespace"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidName    = errors.New("invalid schema name")
	ErrDuplicateEntry = errors.New("duplicate schema entry")
)

// Node is one namespace of a schema.
type Node struct {
	name     string
	children map[string]*Node
	commands map[string]struct{}
}

// Entry is a child declaration passed to New or Namespace.
type Entry struct {
	kind     Kind
	name     string
	children []Entry
}

// Command declares a leaf method.
func Command(name string) Entry {
	return Entry{kind: KindCommand, name: name}
}

// Namespace declares a nested namespace.
func Namespace(name string, entries ...Entry) Entry {
	return Entry{kind: KindNamespace, name: name, children: entries}
}

// New builds a schema node named name. The root of a schema is
// conventionally unnamed.
func New(name string, entries ...Entry) (*Node, error) {
	if strings.Contains(name, ".") {
		return nil, fmt.Errorf("%w: %q contains '.'", ErrInvalidName, name)
	}
	n := &Node{
		name:     name,
		children: make(map[string]*Node),
		commands: make(map[string]struct{}),
	}
	for _, e := range entries {
		if err := n.add(e); err != nil {
			if name == "" {
				return nil, err
			}
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return n, nil
}

// MustNew is like New but panics on error. It is intended for schemas
// declared as package-level variables.
func MustNew(name string, entries ...Entry) *Node {
	n, err := New(name, entries...)
	if err != nil {
		panic("schema: " + err.Error())
	}
	return n
}

func (n *Node) add(e Entry) error {
	if err := validName(e.name); err != nil {
		return err
	}
	if _, ok := n.Kind(e.name); ok {
		return fmt.Errorf("%w: %q", ErrDuplicateEntry, e.name)
	}
	switch e.kind {
	case KindCommand:
		n.commands[e.name] = struct{}{}
	case KindNamespace:
		child, err := New(e.name, e.children...)
		if err != nil {
			return err
		}
		n.children[e.name] = child
	default:
		return fmt.Errorf("%w: %q has no kind", ErrInvalidName, e.name)
	}
	return nil
}

func validName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if strings.Contains(name, ".") {
		return fmt.Errorf("%w: %q contains '.'", ErrInvalidName, name)
	}
	return nil
}

// Name returns the node's own (unqualified) name.
func (n *Node) Name() string {
	return n.name
}

// Kind reports whether name is a direct child of n, and of which kind.
func (n *Node) Kind(name string) (Kind, bool) {
	if _, ok := n.commands[name]; ok {
		return KindCommand, true
	}
	if _, ok := n.children[name]; ok {
		return KindNamespace, true
	}
	return 0, false
}

// HasCommand reports whether name is a command directly under n.
func (n *Node) HasCommand(name string) bool {
	_, ok := n.commands[name]
	return ok
}

// Namespace returns the nested namespace called name.
func (n *Node) Namespace(name string) (*Node, bool) {
	child, ok := n.children[name]
	return child, ok
}

// Names returns the names of all direct children in sorted order.
func (n *Node) Names() []string {
	names := make([]string, 0, len(n.commands)+len(n.children))
	for name := range n.commands {
		names = append(names, name)
	}
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Walk calls fn with the dotted path of every command reachable from n, in
// sorted order. Paths are relative to n. Walk stops at the first error fn
// returns and returns it.
func (n *Node) Walk(fn func(path string) error) error {
	return n.walk("", fn)
}

func (n *Node) walk(prefix string, fn func(path string) error) error {
	for _, name := range n.Names() {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		if child, ok := n.children[name]; ok {
			if err := child.walk(path, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(path); err != nil {
			return err
		}
	}
	return nil
}
