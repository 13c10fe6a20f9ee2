// Package credentials seals server credentials so that they can be kept in
// configuration files and environment variables without exposing the
// password.
//
// A sealed token has the form
//
//	[keyID] "." base64url(nonce || AEAD.Seal(nil, nonce, cbor(credentials), aad))
//
// where aad is "host:port" of the server the credentials belong to, so a
// token copied to another server's configuration does not open. Keys are
// looked up by keyID, which allows rotation: Keys holds every accepted key
// and KeyID selects the one used for sealing.
package credentials

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/mnehpets/nsrpc/transport"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrFormat  = errors.New("invalid sealed credentials format")
	ErrInvalid = errors.New("invalid sealed credentials")
	ErrConfig  = errors.New("invalid credentials configuration")
)

// maxTokenLen bounds how much untrusted input Open decodes.
const maxTokenLen = 4096

// KeySize is the key length for the default AEAD.
const KeySize = chacha20poly1305.KeySize

// Credentials are the user and password for a server.
type Credentials struct {
	User string `cbor:"1,keyasint"`
	Pass string `cbor:"2,keyasint,omitempty"`
}

// Sealer seals and opens Credentials.
type Sealer struct {
	KeyID string
	Keys  map[string][]byte

	// NewAEAD constructs the AEAD. Defaults to chacha20poly1305.NewX.
	NewAEAD func(key []byte) (cipher.AEAD, error)
}

// Option configures a Sealer.
type Option func(*Sealer)

// WithAEAD sets a custom AEAD factory (e.g. AES-GCM).
func WithAEAD(f func(key []byte) (cipher.AEAD, error)) Option {
	return func(s *Sealer) {
		s.NewAEAD = f
	}
}

// NewSealer creates a Sealer that seals with keys[keyID] and opens with any
// key in keys.
func NewSealer(keyID string, keys map[string][]byte, opts ...Option) (*Sealer, error) {
	s := &Sealer{
		KeyID:   keyID,
		Keys:    keys,
		NewAEAD: chacha20poly1305.NewX,
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no keys", ErrConfig)
	}
	if _, ok := keys[keyID]; !ok {
		return nil, fmt.Errorf("%w: key %q not found", ErrConfig, keyID)
	}
	if s.NewAEAD == nil {
		return nil, fmt.Errorf("%w: nil AEAD factory", ErrConfig)
	}
	for id, k := range keys {
		if strings.Contains(id, ".") || id == "" {
			return nil, fmt.Errorf("%w: bad key id %q", ErrConfig, id)
		}
		if _, err := s.NewAEAD(k); err != nil {
			return nil, fmt.Errorf("%w: key %s: %v", ErrConfig, id, err)
		}
	}
	return s, nil
}

// Address returns the "host:port" that binds a token to a server.
func Address(host string, port int) string {
	return net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(port))
}

// Seal encrypts c for the server at addr.
func (s *Sealer) Seal(c Credentials, addr string) (string, error) {
	if s == nil {
		return "", ErrConfig
	}
	key, ok := s.Keys[s.KeyID]
	if !ok {
		return "", ErrConfig
	}
	aead, err := s.NewAEAD(key)
	if err != nil {
		return "", err
	}
	plain, err := cbor.Marshal(c)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, plain, []byte(addr))
	return s.KeyID + "." + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a token sealed for the server at addr.
func (s *Sealer) Open(token, addr string) (Credentials, error) {
	var c Credentials
	if s == nil {
		return c, ErrConfig
	}
	if len(token) == 0 || len(token) > maxTokenLen {
		return c, ErrFormat
	}
	keyID, encB64, ok := strings.Cut(token, ".")
	if !ok || keyID == "" || encB64 == "" {
		return c, ErrFormat
	}
	key, ok := s.Keys[keyID]
	if !ok {
		return c, ErrInvalid
	}
	sealed, err := base64.RawURLEncoding.DecodeString(encB64)
	if err != nil {
		return c, ErrFormat
	}

	aead, err := s.NewAEAD(key)
	if err != nil {
		return c, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return c, ErrFormat
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(addr))
	if err != nil {
		return c, ErrInvalid
	}
	if err := cbor.Unmarshal(plain, &c); err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return c, nil
}

// Apply opens token for the server in params and returns params with the
// credentials filled in.
func (s *Sealer) Apply(params transport.ServerParams, token string) (transport.ServerParams, error) {
	c, err := s.Open(token, Address(params.Host, params.Port))
	if err != nil {
		return params, err
	}
	params.User = c.User
	params.Pass = c.Pass
	return params, nil
}

// GenerateKey returns a random key of KeySize bytes.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// EncodeKey formats a key as "id:base64url".
func EncodeKey(id string, key []byte) string {
	return id + ":" + base64.RawURLEncoding.EncodeToString(key)
}

// ParseKey decodes a base64 key. Standard and URL alphabets are accepted,
// with or without padding.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	key, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		key, err = base64.RawStdEncoding.DecodeString(s)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: key is not base64", ErrConfig)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key is %d bytes, want %d", ErrConfig, len(key), KeySize)
	}
	return key, nil
}

// ParseKeys decodes a comma-separated list of "id:base64" keys. The first
// key is the sealing key.
func ParseKeys(s string) (keyID string, keys map[string][]byte, err error) {
	keys = make(map[string][]byte)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, enc, ok := strings.Cut(part, ":")
		if !ok || id == "" {
			return "", nil, fmt.Errorf("%w: key entry %q needs an id", ErrConfig, part)
		}
		if _, dup := keys[id]; dup {
			return "", nil, fmt.Errorf("%w: duplicate key id %q", ErrConfig, id)
		}
		key, err := ParseKey(enc)
		if err != nil {
			return "", nil, err
		}
		if keyID == "" {
			keyID = id
		}
		keys[id] = key
	}
	if keyID == "" {
		return "", nil, fmt.Errorf("%w: no keys", ErrConfig)
	}
	return keyID, keys, nil
}
