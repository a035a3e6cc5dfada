// Package buildinfo reports the version string the CLI prints for
// --version, in place of the dropped perforce/p4prometheus/version
// subpackage (which baked in Perforce-specific release tooling that has no
// counterpart here).
package buildinfo

import "fmt"

// Version and Commit are overridden at link time via
// "-X github.com/datalight/mkssi-fast-export/buildinfo.Version=...".
var (
	Version = "dev"
	Commit  = "unknown"
)

// String renders the one-line version banner.
func String() string {
	return fmt.Sprintf("mkssi-fast-export %s (%s)", Version, Commit)
}
