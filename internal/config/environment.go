package config

import (
	"os"
	"strings"
)

// Environment identifies where the harness is running. CI runs disable
// model calls so translations stay reproducible; staging runs point the
// REST client at a shared deployment instead of the local venue.
type Environment string

// Known environments.
const (
	EnvLocal   Environment = "LOCAL"
	EnvCI      Environment = "CI"
	EnvStaging Environment = "STAGING"
)

// ResolveEnvironment maps a configured environment name to a known
// Environment. A blank name is auto-detected: CI when the CI or
// GITHUB_ACTIONS variables are set, LOCAL otherwise. Unknown names fall
// back to LOCAL.
func ResolveEnvironment(name string) Environment {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "":
		if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
			return EnvCI
		}
		return EnvLocal
	case "LOCAL":
		return EnvLocal
	case "CI":
		return EnvCI
	case "STAGING":
		return EnvStaging
	default:
		return EnvLocal
	}
}

// IsLocal reports whether this is a developer machine run.
func (e Environment) IsLocal() bool { return e == EnvLocal }

// IsCI reports whether this is a continuous-integration run.
func (e Environment) IsCI() bool { return e == EnvCI }

// IsStaging reports whether this run targets the shared staging deployment.
func (e Environment) IsStaging() bool { return e == EnvStaging }
