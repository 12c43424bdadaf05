package session

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
)

// namePattern matches generated session names: <project>--<adjective>-<noun>-<n>.
var namePattern = regexp.MustCompile(`^[\w-]+--[a-z]+-[a-z]+-\d+$`)

// ValidName reports whether name matches the generated session name format.
// REST endpoints reject anything else before touching tmux.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

var nameAdjectives = []string{
	"brave", "calm", "clever", "eager", "fierce", "gentle", "happy",
	"keen", "lively", "merry", "nimble", "proud", "quick", "quiet",
	"sly", "swift", "warm", "wise",
}

var nameNouns = []string{
	"badger", "bear", "crane", "falcon", "fox", "hare", "heron",
	"lion", "lynx", "otter", "owl", "panda", "raven", "seal",
	"tiger", "whale", "wolf", "wren",
}

// ProjectOf extracts the project component from a session name. Returns the
// whole name if it does not carry the generated-name separator.
func ProjectOf(name string) string {
	if i := strings.Index(name, "--"); i > 0 {
		return name[:i]
	}
	return name
}

// GenerateName returns a fresh session name for project. Uniqueness is
// enforced by the caller against the registry; the numeric suffix keeps
// collisions rare.
func GenerateName(project string) string {
	adj := nameAdjectives[rand.Intn(len(nameAdjectives))]
	noun := nameNouns[rand.Intn(len(nameNouns))]
	return fmt.Sprintf("%s--%s-%s-%d", project, adj, noun, rand.Intn(100))
}
