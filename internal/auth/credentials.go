package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/crypto/bcrypt"
)

// ErrBadCredentials is returned for an unknown user or a wrong password.
var ErrBadCredentials = errors.New("invalid username or password")

// Credentials is the static user list read from the credentials file:
//
//	[users]
//	alice = "<sha256 hex of the password>"
//	[roles]
//	vera = "verifier"
type Credentials struct {
	Users map[string]string `toml:"users"`
	Roles map[string]string `toml:"roles"`
}

// LoadCredentials reads a credentials file from disk.
func LoadCredentials(path string) (*Credentials, error) {
	var creds Credentials
	md, err := toml.DecodeFile(path, &creds)
	if err != nil {
		return nil, fmt.Errorf("auth: decode %s: %w", path, err)
	}
	return finishCredentials(creds, md)
}

// DecodeCredentials reads credentials from r.
func DecodeCredentials(r io.Reader) (*Credentials, error) {
	var creds Credentials
	md, err := toml.DecodeReader(r, &creds)
	if err != nil {
		return nil, fmt.Errorf("auth: decode credentials: %w", err)
	}
	return finishCredentials(creds, md)
}

func finishCredentials(creds Credentials, md toml.MetaData) (*Credentials, error) {
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("auth: these credential fields are unused: %q", undecoded)
	}
	if len(creds.Users) == 0 {
		return nil, errors.New("auth: no users configured")
	}
	for name, role := range creds.Roles {
		if _, ok := creds.Users[name]; !ok {
			return nil, fmt.Errorf("auth: role given for unknown user %q", name)
		}
		if role != RoleUser && role != RoleVerifier {
			return nil, fmt.Errorf("auth: user %q has unknown role %q", name, role)
		}
	}
	return &creds, nil
}

// Authenticate checks password against the stored hash and returns the user's role.
func (c *Credentials) Authenticate(username, password string) (string, error) {
	hash, ok := c.Users[username]
	if !ok || !matches(hash, password) {
		return "", ErrBadCredentials
	}
	return c.Role(username), nil
}

// Role returns the configured role, defaulting to user.
func (c *Credentials) Role(username string) string {
	if role, ok := c.Roles[username]; ok && role != "" {
		return role
	}
	return RoleUser
}

// HashPassword returns the sha256 hex digest stored in the credentials file.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func matches(hash, password string) bool {
	if strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	}
	want := strings.ToLower(strings.TrimSpace(hash))
	return subtle.ConstantTimeCompare([]byte(want), []byte(HashPassword(password))) == 1
}
