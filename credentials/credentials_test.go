package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/mnehpets/nsrpc/transport"
)

func newAESGCMAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func mustKey(t *testing.T) []byte {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return key
}

func TestSealer_RoundTrip(t *testing.T) {
	s, err := NewSealer("a", map[string][]byte{"a": mustKey(t)})
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	want := Credentials{User: "kodi", Pass: "s3cret"}
	token, err := s.Seal(want, "media.local:8080")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !strings.HasPrefix(token, "a.") {
		t.Fatalf("token %q does not carry key id", token)
	}
	if strings.Contains(token, "s3cret") {
		t.Fatalf("token leaks the password")
	}

	got, err := s.Open(token, "media.local:8080")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestSealer_BoundToAddress(t *testing.T) {
	s, _ := NewSealer("a", map[string][]byte{"a": mustKey(t)})
	token, err := s.Seal(Credentials{User: "kodi"}, "media.local:8080")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := s.Open(token, "media.local:8081"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("got %v want ErrInvalid", err)
	}
}

func TestSealer_KeyRotation(t *testing.T) {
	oldKey, newKey := mustKey(t), mustKey(t)
	oldSealer, _ := NewSealer("old", map[string][]byte{"old": oldKey})
	token, err := oldSealer.Seal(Credentials{User: "u", Pass: "p"}, "h:1")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	rotated, err := NewSealer("new", map[string][]byte{"old": oldKey, "new": newKey})
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	if _, err := rotated.Open(token, "h:1"); err != nil {
		t.Fatalf("Open with rotated keys: %v", err)
	}
	fresh, _ := rotated.Seal(Credentials{User: "u"}, "h:1")
	if !strings.HasPrefix(fresh, "new.") {
		t.Fatalf("expected new key id, got %q", fresh)
	}

	dropped, _ := NewSealer("new", map[string][]byte{"new": newKey})
	if _, err := dropped.Open(token, "h:1"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("got %v want ErrInvalid", err)
	}
}

func TestSealer_CustomAEAD(t *testing.T) {
	key := make([]byte, 32)
	s, err := NewSealer("k", map[string][]byte{"k": key}, WithAEAD(newAESGCMAEAD))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	token, err := s.Seal(Credentials{User: "u", Pass: "p"}, "h:1")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := s.Open(token, "h:1"); err != nil {
		t.Fatalf("Open: %v", err)
	}
}

func TestSealer_OpenRejectsMalformed(t *testing.T) {
	s, _ := NewSealer("a", map[string][]byte{"a": mustKey(t)})
	short := "a." + base64.RawURLEncoding.EncodeToString([]byte("tiny"))

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrFormat},
		{"no dot", "abcdef", ErrFormat},
		{"empty key id", ".abc", ErrFormat},
		{"bad base64", "a.!!!", ErrFormat},
		{"too short", short, ErrFormat},
		{"too long", "a." + strings.Repeat("x", maxTokenLen), ErrFormat},
		{"unknown key", "zz.abcdefgh", ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Open(tt.token, "h:1"); !errors.Is(err, tt.want) {
				t.Errorf("got %v want %v", err, tt.want)
			}
		})
	}
}

func TestNewSealer_Validation(t *testing.T) {
	key := make([]byte, KeySize)
	tests := []struct {
		name  string
		keyID string
		keys  map[string][]byte
	}{
		{"nil keys", "a", nil},
		{"missing key id", "b", map[string][]byte{"a": key}},
		{"short key", "a", map[string][]byte{"a": key[:8]}},
		{"dotted id", "a.b", map[string][]byte{"a.b": key}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSealer(tt.keyID, tt.keys); !errors.Is(err, ErrConfig) {
				t.Errorf("got %v want ErrConfig", err)
			}
		})
	}
}

func TestSealer_Apply(t *testing.T) {
	s, _ := NewSealer("a", map[string][]byte{"a": mustKey(t)})
	params := transport.ServerParams{Host: "::1", Port: 9090}
	token, err := s.Seal(Credentials{User: "kodi", Pass: "pw"}, Address("[::1]", 9090))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	got, err := s.Apply(params, token)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got.User != "kodi" || got.Pass != "pw" || got.Host != "::1" || got.Port != 9090 {
		t.Fatalf("unexpected params %+v", got)
	}
}

func TestParseKeys(t *testing.T) {
	k1, k2 := mustKey(t), mustKey(t)
	keyList := EncodeKey("one", k1) + ", two:" + base64.StdEncoding.EncodeToString(k2)

	keyID, keys, err := ParseKeys(keyList)
	if err != nil {
		t.Fatalf("ParseKeys: %v", err)
	}
	if keyID != "one" {
		t.Errorf("got key id %q want %q", keyID, "one")
	}
	if len(keys) != 2 || string(keys["one"]) != string(k1) || string(keys["two"]) != string(k2) {
		t.Errorf("keys not decoded correctly")
	}

	for _, bad := range []string{"", "nokey", ":abc", "a:short", EncodeKey("a", k1) + "," + EncodeKey("a", k2)} {
		if _, _, err := ParseKeys(bad); !errors.Is(err, ErrConfig) {
			t.Errorf("ParseKeys(%q): got %v want ErrConfig", bad, err)
		}
	}
}
