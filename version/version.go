package version

import "fmt"

// Set at link time with -ldflags "-X ptstream/version.GitTag=...".
var GitCommit string
var GitTag string
var UserAgent string

func init() {
	UserAgent = fmt.Sprintf("ptstream/%s", String())
}

// String renders the tag and commit, falling back to "dev" when the binary
// was built without them.
func String() string {
	tag := GitTag
	if tag == "" {
		tag = "dev"
	}
	if GitCommit == "" {
		return tag
	}
	return fmt.Sprintf("%s+%s", tag, GitCommit)
}
