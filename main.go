package main

import (
	"github.com/grafana/whatif/internal/build"
	"github.com/grafana/whatif/internal/whatifcli"
)

func init() {
	if build.Version == "" || build.Version == "v0.0.0" {
		build.Version = fallbackVersion(releaseManifest)
	}
}

func main() {
	whatifcli.Run()
}
