// Package profile holds the persisted key-binding configuration: an ordered
// set of named profiles, each mapping key names ("G1", "M2", "MR", "L3") to
// bindings. Profile order matters because the first profile is the default,
// so (un)marshalling preserves the order found on disk.
package profile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoProfiles is returned when a loaded configuration defines no profiles.
// This is a fatal startup condition.
var ErrNoProfiles = errors.New("profile: no profiles defined")

// Profile maps a key name to its Binding. A key without an entry is a no-op.
type Profile map[string]Binding

// Config is the full on-disk configuration: profile name -> Profile, in
// user-chosen order.
type Config struct {
	names    []string
	profiles map[string]Profile
}

func New() *Config {
	return &Config{profiles: make(map[string]Profile)}
}

// Set adds or replaces a profile, appending the name on first use.
func (c *Config) Set(name string, p Profile) {
	if _, ok := c.profiles[name]; !ok {
		c.names = append(c.names, name)
	}
	c.profiles[name] = p
}

// Get returns the named profile.
func (c *Config) Get(name string) (Profile, bool) {
	p, ok := c.profiles[name]
	return p, ok
}

// Has reports whether a profile with the given name exists.
func (c *Config) Has(name string) bool {
	_, ok := c.profiles[name]
	return ok
}

// First returns the name of the first profile; it is the default selection.
func (c *Config) First() string {
	if len(c.names) == 0 {
		return ""
	}
	return c.names[0]
}

// Names returns the profile names in order.
func (c *Config) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

func (c *Config) Len() int { return len(c.names) }

func (c *Config) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("profile: configuration must be an object, got %v", tok)
	}
	c.names = nil
	c.profiles = make(map[string]Profile)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("profile: %w", err)
		}
		name := keyTok.(string)
		var p Profile
		if err := dec.Decode(&p); err != nil {
			return fmt.Errorf("profile %q: %w", name, err)
		}
		if p == nil {
			p = Profile{}
		}
		c.Set(name, p)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	return nil
}

func (c *Config) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range c.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(c.profiles[name])
		if err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Load reads and parses the configuration file. An unreadable file, invalid
// JSON or an empty profile set are all errors; the caller decides whether
// that is fatal (startup) or a warning (reload).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	c := New()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	if c.Len() == 0 {
		return nil, ErrNoProfiles
	}
	return c, nil
}

// Save rewrites the configuration file in full, via a temp file so a crash
// mid-write cannot truncate the previous contents.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return fmt.Errorf("encode profiles: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write profiles: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write profiles: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write profiles: %w", err)
	}
	return nil
}
