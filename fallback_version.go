package main

import (
	_ "embed"
	"encoding/json"

	"github.com/grafana/whatif/internal/build"
)

//go:embed .release-please-manifest.json
var releaseManifest []byte

// fallbackVersion derives a -devel version from the release manifest for
// builds that did not set one with -ldflags.
func fallbackVersion(manifestJSON []byte) string {
	var manifest map[string]string
	if err := json.Unmarshal(manifestJSON, &manifest); err != nil {
		return build.Version
	}

	version, ok := manifest["."]
	if !ok || version == "" {
		return build.Version
	}
	return "v" + version + "-devel"
}
