package client

import (
	"context"
	"strings"

	"github.com/mnehpets/nsrpc/schema"
)

// Child is the result of resolving a name in a Namespace. It is either a
// *Namespace or a *Command.
type Child interface {
	Name() string
	FullName() string
	isChild()
}

// Namespace is a navigable node of a client's method tree.
//
// Children are materialized on first access and cached, so resolving the
// same name twice yields the same pointer. The cache is not synchronized:
// navigating one tree from several goroutines needs external locking.
type Namespace struct {
	name   string
	schema *schema.Node
	client *Client
	// parent is nil for the root. It is only used to compute FullName.
	parent *Namespace
	cache  map[string]Child
}

func newNamespace(name string, node *schema.Node, c *Client, parent *Namespace) *Namespace {
	return &Namespace{
		name:   name,
		schema: node,
		client: c,
		parent: parent,
		cache:  make(map[string]Child),
	}
}

func (n *Namespace) isChild() {}

// Name returns the namespace's own name; "" for the root.
func (n *Namespace) Name() string {
	return n.name
}

// FullName returns the dotted path from the root to n. The root's full name
// is "".
func (n *Namespace) FullName() string {
	if n.parent == nil {
		return ""
	}
	return strings.Trim(n.parent.FullName()+"."+n.name, ".")
}

// Schema returns the schema node n is bound to.
func (n *Namespace) Schema() *schema.Node {
	return n.schema
}

// Namespace resolves a direct child namespace.
func (n *Namespace) Namespace(name string) (*Namespace, error) {
	node, ok := n.schema.Namespace(name)
	if !ok {
		return nil, n.notFound(ErrInvalidNamespace, name)
	}
	if cached, ok := n.cache[name].(*Namespace); ok {
		return cached, nil
	}
	child := newNamespace(name, node, n.client, n)
	n.cache[name] = child
	return child, nil
}

// Command resolves a direct child command.
func (n *Namespace) Command(name string) (*Command, error) {
	if !n.schema.HasCommand(name) {
		return nil, n.notFound(ErrInvalidCommand, name)
	}
	if cached, ok := n.cache[name].(*Command); ok {
		return cached, nil
	}
	cmd := &Command{name: name, namespace: n, client: n.client}
	n.cache[name] = cmd
	return cmd, nil
}

// Resolve resolves a direct child of either kind. A name the schema does not
// list fails with ErrInvalidCommand.
func (n *Namespace) Resolve(name string) (Child, error) {
	kind, ok := n.schema.Kind(name)
	if !ok {
		return nil, n.notFound(ErrInvalidCommand, name)
	}
	if kind == schema.KindNamespace {
		return n.Namespace(name)
	}
	return n.Command(name)
}

// Lookup resolves a dotted path relative to n. Every segment but the last
// must be a namespace; the last may be either kind. An empty path resolves
// to n itself.
func (n *Namespace) Lookup(path string) (Child, error) {
	if path == "" {
		return n, nil
	}
	dir, name := splitPath(path)
	ns, err := n.walk(dir)
	if err != nil {
		return nil, err
	}
	return ns.Resolve(name)
}

// Call resolves the command name and executes it with params.
func (n *Namespace) Call(ctx context.Context, name string, params interface{}) (*Response, error) {
	cmd, err := n.Command(name)
	if err != nil {
		return nil, err
	}
	return cmd.Call(ctx, params)
}

// walk descends through the namespaces named by a dotted path.
func (n *Namespace) walk(path string) (*Namespace, error) {
	cur := n
	if path == "" {
		return cur, nil
	}
	for _, seg := range strings.Split(path, ".") {
		next, err := cur.Namespace(seg)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func (n *Namespace) notFound(kind error, name string) error {
	return &NavigationError{Kind: kind, Namespace: n.FullName(), Name: name}
}

// splitPath splits "a.b.c" into "a.b" and "c".
func splitPath(path string) (dir, name string) {
	i := strings.LastIndex(path, ".")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}
