package config

import (
	"fmt"
	"io"
	"io/fs"
	"os"
)

// Parser reads cutsim configuration files and expands environment
// variables in path settings.
type Parser struct {
	lua *LuaConfigParser
}

// NewParser creates a Parser.
func NewParser() *Parser {
	return &Parser{lua: NewLuaConfigParser()}
}

// ParseFile reads and parses a configuration file.
func (p *Parser) ParseFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return p.Parse(content)
}

// Parse parses configuration content.
func (p *Parser) Parse(content []byte) (*Config, error) {
	cfg, err := p.lua.Parse(content)
	if err != nil {
		return nil, err
	}
	ExpandEnvConfig(cfg)
	return cfg, nil
}

// ParseFromFS reads and parses a configuration file from fsys.
func (p *Parser) ParseFromFS(fsys fs.FS, path string) (*Config, error) {
	content, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config from FS %s: %w", path, err)
	}
	return p.Parse(content)
}

// ParseReader parses configuration from r.
func (p *Parser) ParseReader(r io.Reader) (*Config, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return p.Parse(content)
}

// Close releases resources associated with the parser.
func (p *Parser) Close() error {
	return p.lua.Close()
}
