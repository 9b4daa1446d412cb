// Package auth keeps the game session credential fresh and performs
// authenticated requests against the game API.
package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Seconds is a duration in whole seconds. The token endpoint reports it as a
// JSON string, older state files as a number; both decode.
type Seconds int64

func (s *Seconds) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		var str string
		if err2 := json.Unmarshal(data, &str); err2 != nil {
			return fmt.Errorf("invalid seconds value %s", data)
		}
		n = json.Number(str)
	}
	if n == "" {
		*s = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return fmt.Errorf("invalid seconds value %q: %w", n, err)
	}
	*s = Seconds(v)
	return nil
}

// Duration converts to a time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(s) * time.Second
}

// State is the persisted session credential.
type State struct {
	IDToken      string  `json:"id_token"`
	RefreshToken string  `json:"refresh_token"`
	CurrentTime  float64 `json:"current_time"` // unix seconds when the token was issued
	ExpiresIn    Seconds `json:"expires_in"`
}

// ExpiresAt is the instant the id token stops being accepted.
func (s *State) ExpiresAt() time.Time {
	issued := time.Unix(0, int64(s.CurrentTime*float64(time.Second)))
	return issued.Add(s.ExpiresIn.Duration())
}

// LoadState reads the state file at path.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read auth state: %w", err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse auth state: %w", err)
	}
	if s.RefreshToken == "" {
		return nil, fmt.Errorf("auth state %s has no refresh_token", path)
	}
	return &s, nil
}

// Save overwrites the state file at path. The write goes through a temp file
// in the same directory so a crash never leaves a truncated file.
func (s *State) Save(path string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal auth state: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".auth-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp auth state: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("failed to write auth state: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("failed to chmod auth state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close auth state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace auth state: %w", err)
	}
	return nil
}
