package config

import (
	"os"
	"regexp"
	"strings"
)

// envVarPattern matches ${VAR}, ${VAR:-default} and $VAR references.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([a-zA-Z_][a-zA-Z0-9_]*)`)

// ExpandEnv expands environment variable references in a string.
// It supports the following formats:
//   - ${VAR_NAME} - replaced with value of VAR_NAME
//   - ${VAR_NAME:-default} - replaced with VAR_NAME's value, or "default" if unset/empty
//   - $VAR_NAME - replaced with value of VAR_NAME
//
// Unset variables without defaults are replaced with the empty string.
func ExpandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if strings.HasPrefix(match, "${") {
			inner := match[2 : len(match)-1]
			if name, def, ok := strings.Cut(inner, ":-"); ok {
				if val := os.Getenv(name); val != "" {
					return val
				}
				return def
			}
			return os.Getenv(inner)
		}
		return os.Getenv(match[1:])
	})
}

// ExpandEnvConfig expands environment variables in every path-like setting:
// the output target, the job path and the SSH key, passphrase and
// known_hosts settings.
func ExpandEnvConfig(cfg *Config) {
	if cfg == nil {
		return
	}

	cfg.Output.Target = ExpandEnv(cfg.Output.Target)
	cfg.Job.Path = ExpandEnv(cfg.Job.Path)
	cfg.SSH.User = ExpandEnv(cfg.SSH.User)
	cfg.SSH.KeyPath = ExpandEnv(cfg.SSH.KeyPath)
	cfg.SSH.KeyPassphrase = ExpandEnv(cfg.SSH.KeyPassphrase)
	cfg.SSH.KnownHosts = ExpandEnv(cfg.SSH.KnownHosts)
}
