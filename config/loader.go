package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/patchforge/opsync/errors"
	"github.com/patchforge/opsync/pkg/paths"
)

// ConfigFileName is the canonical name of the opsync config file.
const ConfigFileName = "opsync.yml"

// knownSections are top-level keys owned by this package; everything else
// ends up in Extensions.
var knownSections = map[string]bool{
	"version": true,
	"daemon":  true,
	"client":  true,
}

// FindConfigFile returns the path of opsync.yml, or an error if none exists.
// The OPSYNC_CONFIG env var wins over the config directory.
func FindConfigFile() (string, error) {
	if p := os.Getenv("OPSYNC_CONFIG"); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", errors.ConfigNotFound(p)
		}
		return p, nil
	}

	p := filepath.Join(paths.ConfigDir(), ConfigFileName)
	if _, err := os.Stat(p); err != nil {
		return "", errors.ConfigNotFound(p)
	}
	return p, nil
}

// Load reads and parses the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config")
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses config YAML, capturing unknown top-level sections
// into Extensions.
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.ConfigInvalid(err.Error())
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.ConfigInvalid(err.Error())
	}

	cfg.Extensions = make(map[string]interface{})
	for key, value := range raw {
		if !knownSections[key] {
			cfg.Extensions[key] = value
		}
	}

	return &cfg, nil
}

// LoadDefault loads opsync.yml from its standard location. A missing file is
// not an error: defaults are returned so every command works out of the box.
func LoadDefault() (*Config, error) {
	path, err := FindConfigFile()
	if err != nil {
		return Default(), nil
	}
	return Load(path)
}

// UnmarshalExtension decodes a named extension section into out.
// Returns nil without touching out when the section is absent.
func (c *Config) UnmarshalExtension(name string, out interface{}) error {
	section, ok := c.Extensions[name]
	if !ok {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "yaml",
		Result:  out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder for section '%s': %w", name, err)
	}
	if err := decoder.Decode(section); err != nil {
		return errors.ConfigInvalid(fmt.Sprintf("section '%s': %v", name, err))
	}
	return nil
}
