package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type KeyConfig struct {
	Key         string `yaml:"key"`         // Path to private key (PEM or DER)
	Certificate string `yaml:"certificate"` // Path to certificate chain for this key
	PKCS12      string `yaml:"pkcs12"`      // Path to a PKCS#12 bundle holding both
	Password    string `yaml:"password"`    // Password for the PKCS#12 bundle
	Timestamp   string `yaml:"timestamp"`   // Timestamp server URL (reserved)

	name string
}

type Config struct {
	Keys   map[string]*KeyConfig `yaml:"keys"`
	Digest string                `yaml:"digest"` // Default digest algorithm

	path string
}

func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	config, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing configuration %s: %w", path, err)
	}
	config.path = path
	return config, nil
}

func Parse(data []byte) (*Config, error) {
	config := new(Config)
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}
	for name, keyConf := range config.Keys {
		keyConf.name = name
	}
	return config, nil
}

func (config *Config) Path() string {
	return config.path
}

func (config *Config) GetKey(keyName string) (*KeyConfig, error) {
	if config.Keys == nil {
		return nil, errors.New("no keys defined in configuration")
	}
	keyConf, ok := config.Keys[keyName]
	if !ok {
		return nil, fmt.Errorf("key %q not found in configuration", keyName)
	}
	if keyConf.PKCS12 == "" && (keyConf.Key == "" || keyConf.Certificate == "") {
		return nil, fmt.Errorf("key %q must specify either 'pkcs12' or both 'key' and 'certificate'", keyName)
	}
	return keyConf, nil
}

func (keyConf *KeyConfig) Name() string {
	return keyConf.name
}
