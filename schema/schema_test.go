package schema

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func testSchema(t *testing.T) *Node {
	t.Helper()
	n, err := New("",
		Command("Ping"),
		Namespace("System",
			Command("Foo"),
			Namespace("Power", Command("Shutdown"), Command("Reboot")),
		),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return n
}

func TestNodeKind(t *testing.T) {
	root := testSchema(t)

	tests := []struct {
		name   string
		want   Kind
		wantOK bool
	}{
		{"Ping", KindCommand, true},
		{"System", KindNamespace, true},
		{"Foo", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := root.Kind(tt.name)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Kind(%q) = %v, %v; want %v, %v", tt.name, got, ok, tt.want, tt.wantOK)
			}
		})
	}

	sys, ok := root.Namespace("System")
	if !ok {
		t.Fatal("System namespace missing")
	}
	if sys.Name() != "System" {
		t.Errorf("got name %q, want %q", sys.Name(), "System")
	}
	if !sys.HasCommand("Foo") {
		t.Error("expected System.Foo to be a command")
	}
	if sys.HasCommand("Power") {
		t.Error("System.Power is a namespace, not a command")
	}
}

func TestNewRejectsBadNames(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		wantErr error
	}{
		{"empty", []Entry{Command("")}, ErrInvalidName},
		{"dotted", []Entry{Command("a.b")}, ErrInvalidName},
		{"nested dotted", []Entry{Namespace("A", Namespace("b.c"))}, ErrInvalidName},
		{"duplicate", []Entry{Command("A"), Namespace("A")}, ErrDuplicateEntry},
		{"zero entry", []Entry{{name: "A"}}, ErrInvalidName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("", tt.entries...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got error %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMustNewPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustNew("", Command("a.b"))
}

func TestNamesAndWalk(t *testing.T) {
	root := testSchema(t)

	if got, want := root.Names(), []string{"Ping", "System"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got names %v, want %v", got, want)
	}

	var paths []string
	err := root.Walk(func(path string) error {
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	want := []string{"Ping", "System.Foo", "System.Power.Reboot", "System.Power.Shutdown"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("got paths %v, want %v", paths, want)
	}
}

func TestWalkStopsOnError(t *testing.T) {
	root := testSchema(t)
	stop := errors.New("stop")
	calls := 0
	err := root.Walk(func(string) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("got %v, want %v", err, stop)
	}
	if calls != 1 {
		t.Errorf("got %d calls, want 1", calls)
	}
}

func TestParseYAML(t *testing.T) {
	doc := `
JSONRPC:
  Ping: command
  Version:
System:
  Power: [Shutdown, Reboot]
Player:
  - GetActivePlayers
  - Playlist: [Add, Clear]
`
	root, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var paths []string
	root.Walk(func(path string) error {
		paths = append(paths, path)
		return nil
	})
	want := []string{
		"JSONRPC.Ping",
		"JSONRPC.Version",
		"Player.GetActivePlayers",
		"Player.Playlist.Add",
		"Player.Playlist.Clear",
		"System.Power.Reboot",
		"System.Power.Shutdown",
	}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("got paths %v, want %v", paths, want)
	}
}

func TestParseJSON(t *testing.T) {
	root, err := Parse([]byte(`{"System": {"Foo": null, "Bar": "command"}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sys, ok := root.Namespace("System")
	if !ok {
		t.Fatal("System namespace missing")
	}
	if !sys.HasCommand("Foo") || !sys.HasCommand("Bar") {
		t.Errorf("got children %v, want Foo and Bar commands", sys.Names())
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{"not yaml", "{", ErrSyntax},
		{"top level sequence", "- a\n- b\n", ErrSyntax},
		{"scalar value", "System: 3\n", ErrSyntax},
		{"multi-key sequence mapping", "A:\n  - {B: [x], C: [y]}\n", ErrSyntax},
		{"dotted name", "A.B: command\n", ErrInvalidName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got error %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	root, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(root.Names()) != 0 {
		t.Errorf("got %v, want no children", root.Names())
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	if err := os.WriteFile(path, []byte("System:\n  Foo: command\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	root, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if k, ok := root.Kind("System"); !ok || k != KindNamespace {
		t.Errorf("got %v, %v; want namespace", k, ok)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
