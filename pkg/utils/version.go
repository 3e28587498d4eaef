// Package utils holds small helpers shared by the ligandx commands that are
// too thin to be their own package.
package utils

import "fmt"

// Build stamps, overwritten at link time with -X by the release build.
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)

// BuildString identifies the running ligandx binary in one line, as recorded
// on published document events.
func BuildString() string {
	return fmt.Sprintf("ligandx %s (%s)", Version, Sha)
}
