package config

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/arnodel/golua/lib"
	rt "github.com/arnodel/golua/runtime"
)

// LuaConfigParser executes a Lua configuration file and reads the
// cutsim.config table it leaves behind.
type LuaConfigParser struct {
	runtime *rt.Runtime
	cleanup func()
	mu      sync.Mutex
}

// NewLuaConfigParser creates a parser whose print output is discarded.
func NewLuaConfigParser() *LuaConfigParser {
	return NewLuaConfigParserWithOutput(io.Discard)
}

// NewLuaConfigParserWithOutput creates a parser that sends print output to stdout.
func NewLuaConfigParserWithOutput(stdout io.Writer) *LuaConfigParser {
	if stdout == nil {
		stdout = io.Discard
	}
	r := rt.New(stdout)
	return &LuaConfigParser{
		runtime: r,
		cleanup: lib.LoadAll(r),
	}
}

// Parse executes content and extracts the configuration. Keys that are not
// set keep their defaults.
func (p *LuaConfigParser) Parse(content []byte) (*Config, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.initGlobal()

	closure, err := p.runtime.CompileAndLoadLuaChunk("config", content, rt.TableValue(p.runtime.GlobalEnv()))
	if err != nil {
		return nil, fmt.Errorf("failed to compile Lua configuration: %w", err)
	}

	p.runtime.PushContext(rt.RuntimeContextDef{
		HardLimits: rt.RuntimeResources{
			Cpu:    10_000_000,
			Memory: 16 * 1024 * 1024,
		},
	})
	defer p.runtime.PopContext()

	if _, err := rt.Call1(p.runtime.MainThread(), rt.FunctionValue(closure)); err != nil {
		return nil, fmt.Errorf("failed to execute Lua configuration: %w", err)
	}

	return p.extractConfig()
}

// initGlobal resets the cutsim global to an empty config table.
func (p *LuaConfigParser) initGlobal() {
	root := rt.NewTable()
	root.Set(rt.StringValue("config"), rt.TableValue(rt.NewTable()))
	p.runtime.GlobalEnv().Set(rt.StringValue("cutsim"), rt.TableValue(root))
}

func (p *LuaConfigParser) extractConfig() (*Config, error) {
	cfg := DefaultConfig()

	rootVal := p.runtime.GlobalEnv().Get(rt.StringValue("cutsim"))
	if rootVal == rt.NilValue {
		return &cfg, nil
	}
	root, ok := rootVal.TryTable()
	if !ok {
		return nil, fmt.Errorf("cutsim is not a table")
	}

	configVal := root.Get(rt.StringValue("config"))
	if configVal == rt.NilValue {
		return &cfg, nil
	}
	table, ok := configVal.TryTable()
	if !ok {
		return nil, fmt.Errorf("cutsim.config is not a table")
	}

	extractConfigTable(&cfg, table)
	return &cfg, nil
}

// extractConfigTable copies recognised keys from table into cfg.
func extractConfigTable(cfg *Config, table *rt.Table) {
	// Device
	setFloat(table, "width", &cfg.Device.Width)
	setFloat(table, "height", &cfg.Device.Height)
	setFloat(table, "resolution_x", &cfg.Device.ResolutionX)
	setFloat(table, "resolution_y", &cfg.Device.ResolutionY)
	if val := getTableFloat(table, "resolution"); val != nil {
		cfg.Device.ResolutionX = *val
		cfg.Device.ResolutionY = *val
	}
	setFloat(table, "tool_width", &cfg.Device.ToolWidth)

	// Output
	setString(table, "output", &cfg.Output.Target)
	setInt(table, "output_min_length", &cfg.Output.MinLength)
	setBool(table, "require_known_format", &cfg.Output.RequireKnownFormat)
	setInt(table, "jpeg_quality", &cfg.Output.JPEGQuality)

	// Preview window
	setBool(table, "preview", &cfg.Preview.Enabled)
	setFloat(table, "preview_scale", &cfg.Preview.Scale)
	setString(table, "preview_title", &cfg.Preview.Title)
	setBool(table, "preview_keep_above", &cfg.Preview.KeepAbove)

	// Preview server
	setString(table, "serve", &cfg.Serve.Address)
	setDuration(table, "serve_interval", &cfg.Serve.Interval)
	setBool(table, "mdns", &cfg.Serve.MDNS)
	setString(table, "mdns_name", &cfg.Serve.MDNSName)

	// SSH output
	setString(table, "ssh_user", &cfg.SSH.User)
	setString(table, "ssh_key", &cfg.SSH.KeyPath)
	setString(table, "ssh_key_passphrase", &cfg.SSH.KeyPassphrase)
	setString(table, "ssh_known_hosts", &cfg.SSH.KnownHosts)
	setBool(table, "ssh_insecure", &cfg.SSH.Insecure)
	setDuration(table, "ssh_timeout", &cfg.SSH.Timeout)

	// Job
	setString(table, "job", &cfg.Job.Path)
	setBool(table, "watch", &cfg.Job.Watch)
}

// Close releases the parser's Lua runtime.
func (p *LuaConfigParser) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cleanup != nil {
		p.cleanup()
		p.cleanup = nil
	}
	return nil
}

func setBool(table *rt.Table, key string, dst *bool) {
	if v := getTableBool(table, key); v != nil {
		*dst = *v
	}
}

func setString(table *rt.Table, key string, dst *string) {
	if v := getTableString(table, key); v != nil {
		*dst = *v
	}
}

func setFloat(table *rt.Table, key string, dst *float64) {
	if v := getTableFloat(table, key); v != nil {
		*dst = *v
	}
}

func setInt(table *rt.Table, key string, dst *int) {
	if v := getTableInt(table, key); v != nil {
		*dst = *v
	}
}

// setDuration reads a number of seconds.
func setDuration(table *rt.Table, key string, dst *time.Duration) {
	if v := getTableFloat(table, key); v != nil {
		*dst = time.Duration(*v * float64(time.Second))
	}
}

// getTableBool retrieves a boolean value from a Lua table.
// Returns nil if the key doesn't exist or is not a boolean.
func getTableBool(table *rt.Table, key string) *bool {
	val := table.Get(rt.StringValue(key))
	if val == rt.NilValue {
		return nil
	}

	if b, ok := val.TryBool(); ok {
		return &b
	}

	// Accept "yes"/"true"/"1" strings
	if s, ok := val.TryString(); ok {
		b := parseBool(s)
		return &b
	}

	return nil
}

// getTableString retrieves a string value from a Lua table.
// Returns nil if the key doesn't exist or is not a string.
func getTableString(table *rt.Table, key string) *string {
	val := table.Get(rt.StringValue(key))
	if val == rt.NilValue {
		return nil
	}

	if s, ok := val.TryString(); ok {
		return &s
	}

	return nil
}

// getTableFloat retrieves a float64 value from a Lua table.
// Returns nil if the key doesn't exist or is not a number.
func getTableFloat(table *rt.Table, key string) *float64 {
	val := table.Get(rt.StringValue(key))
	if val == rt.NilValue {
		return nil
	}

	if n, ok := val.TryFloat(); ok {
		return &n
	}
	if n, ok := val.TryInt(); ok {
		f := float64(n)
		return &f
	}

	return nil
}

// getTableInt retrieves an int value from a Lua table.
// Returns nil if the key doesn't exist or is not a number.
func getTableInt(table *rt.Table, key string) *int {
	val := table.Get(rt.StringValue(key))
	if val == rt.NilValue {
		return nil
	}

	if n, ok := val.TryInt(); ok {
		i := int(n)
		return &i
	}
	if f, ok := val.TryFloat(); ok {
		i := int(f)
		return &i
	}

	return nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1":
		return true
	default:
		return false
	}
}
