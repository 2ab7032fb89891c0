// Package tokenfile reads and writes the saved OAuth2 credential. The on-disk
// layout is Google's "authorized user" JSON (token, refresh_token, token_uri,
// client_id, client_secret, scopes, expiry), so the file carries everything
// needed to refresh without the client-secret file.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/oauth2"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the token file's parent directory.
const DirPerms = 0o700

// file is the on-disk format.
type file struct {
	Token        string   `json:"token"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	TokenURI     string   `json:"token_uri,omitempty"`
	ClientID     string   `json:"client_id,omitempty"`
	ClientSecret string   `json:"client_secret,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
	Expiry       string   `json:"expiry,omitempty"`
}

// Credential is a decoded token file.
type Credential struct {
	Token        *oauth2.Token
	TokenURI     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// HasScope reports whether the credential was granted scope.
func (c *Credential) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// Load reads a saved credential. Returns (nil, nil) if the file does not exist.
func Load(path string) (*Credential, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if f.Token == "" && f.RefreshToken == "" {
		return nil, fmt.Errorf("tokenfile: %s has empty credentials", path)
	}

	tok := &oauth2.Token{
		AccessToken:  f.Token,
		RefreshToken: f.RefreshToken,
		TokenType:    "Bearer",
	}

	if f.Expiry != "" {
		// Python google-auth writes microseconds; RFC3339Nano accepts both.
		expiry, parseErr := time.Parse(time.RFC3339Nano, f.Expiry)
		if parseErr != nil {
			return nil, fmt.Errorf("tokenfile: %s has invalid expiry %q: %w", path, f.Expiry, parseErr)
		}

		tok.Expiry = expiry
	}

	return &Credential{
		Token:        tok,
		TokenURI:     f.TokenURI,
		ClientID:     f.ClientID,
		ClientSecret: f.ClientSecret,
		Scopes:       f.Scopes,
	}, nil
}

// Save writes a credential to disk atomically (write-to-temp + rename)
// with 0600 permissions. Never logs token values.
func Save(path string, cred *Credential) error {
	if cred == nil || cred.Token == nil {
		return fmt.Errorf("tokenfile: refusing to save nil token")
	}

	f := file{
		Token:        cred.Token.AccessToken,
		RefreshToken: cred.Token.RefreshToken,
		TokenURI:     cred.TokenURI,
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		Scopes:       cred.Scopes,
	}

	if !cred.Token.Expiry.IsZero() {
		f.Expiry = cred.Token.Expiry.UTC().Format(time.RFC3339)
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

// Remove deletes the token file. A missing file is not an error.
func Remove(path string) (bool, error) {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return true, nil
}
