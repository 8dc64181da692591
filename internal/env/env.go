// Package env captures details about the orchestrator's local environment:
// where the fallback config file, package manifests, and default staging
// and release directories live when running outside of a fully configured
// submit.
package env

import "os"

// Root is the base directory the CLI falls back to for its config file
// (config.toml), the file-system backed PackageResolver's manifests (pkg/),
// and the build command's default staging and release directories.
// Explicit settings (-config, $BUTIDO_CONFIG, $BUTIDO_PACKAGES, the
// configuration's directories) take precedence.
var Root = findRoot()

func findRoot() string {
	if root := os.Getenv("BUTIDO_ROOT"); root != "" {
		return root
	}
	return os.ExpandEnv("$HOME/.butido") // default
}
