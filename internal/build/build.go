// Package build holds build-time information like the whatif version. The
// variables are set with -ldflags at build time.
package build

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/blang/semver/v4"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Version   string
	Revision  string
	Branch    string
	BuildUser string
	BuildDate string
)

func init() {
	Version = normalizeVersion(Version)
}

// normalizeVersion prefixes semantic versions with "v". Anything that is not
// a semantic version is returned unchanged.
func normalizeVersion(version string) string {
	if version == "" {
		return "v0.0.0"
	}
	v, err := semver.Parse(strings.TrimPrefix(version, "v"))
	if err != nil {
		return version
	}
	return "v" + v.String()
}

// Print returns version information for program.
func Print(program string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s, version %s (branch: %s, revision: %s)\n", program, Version, Branch, Revision)
	fmt.Fprintf(&sb, "  build user:       %s\n", BuildUser)
	fmt.Fprintf(&sb, "  build date:       %s\n", BuildDate)
	fmt.Fprintf(&sb, "  go version:       %s\n", runtime.Version())
	fmt.Fprintf(&sb, "  platform:         %s/%s", runtime.GOOS, runtime.GOARCH)
	return sb.String()
}

// NewCollector returns a collector exporting a constant <program>_build_info
// metric labeled with the build information.
func NewCollector(program string) prometheus.Collector {
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: program,
			Name:      "build_info",
			Help:      fmt.Sprintf("A metric with a constant '1' value labeled by version, revision, branch, and goversion from which %s was built.", program),
			ConstLabels: prometheus.Labels{
				"version":   Version,
				"revision":  Revision,
				"branch":    Branch,
				"goversion": runtime.Version(),
			},
		},
		func() float64 { return 1 },
	)
}
