// Package identifier implements the hierarchical identifier scheme that
// partitions the flat key space into per-user, per-environment namespaces.
//
// An identifier is a dot-separated sequence of non-empty segments:
//
//	environment.username[.segment]*
//
// The first segment is always a defined [Environment], the second is the
// owning user's username, and everything after that is an opaque path into
// the user's namespace. Hierarchy is implicit: there is no stored
// parent/child link, only the segment-wise prefix relation tested by
// [IsPrefixOf].
package identifier

import (
	"strings"

	"github.com/easysave/easysave/pkg/errs"
)

// Separator joins identifier segments. Segments must not contain it.
const Separator = "."

// MaxLength is the persisted-schema bound on a full identifier.
const MaxLength = 1024

// Environment selects the namespace root prefix. It is immutable once a
// user is created.
type Environment string

const (
	EnvProd Environment = "prod"
	EnvTest Environment = "test"
)

// ParseEnvironment returns the Environment named by s.
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(s) {
	case EnvProd:
		return EnvProd, nil
	case EnvTest:
		return EnvTest, nil
	}
	return "", errs.Newf(errs.InvalidIdentifier, "unknown environment %q", s)
}

func (e Environment) String() string { return string(e) }

// Identifier is a parsed hierarchical identifier.
type Identifier struct {
	Environment Environment
	Username    string
	Segments    []string
}

// String renders the identifier in wire format.
func (id Identifier) String() string {
	parts := append([]string{string(id.Environment), id.Username}, id.Segments...)
	return strings.Join(parts, Separator)
}

// Valid reports whether raw satisfies the identifier invariants: at least
// environment and username segments, a defined environment, no empty
// segments, and a total length within MaxLength.
func Valid(raw string) bool {
	if len(raw) > MaxLength {
		return false
	}
	segments := strings.Split(raw, Separator)
	if len(segments) < 2 {
		return false
	}
	if _, err := ParseEnvironment(segments[0]); err != nil {
		return false
	}
	for _, segment := range segments {
		if strings.TrimSpace(segment) == "" {
			return false
		}
	}
	return true
}

// ValidUsername reports whether username is usable as the second segment
// of a namespace root: exactly one non-blank segment with no embedded
// separator. A username containing the separator would make one user's
// namespace root a segment-wise prefix of another's.
func ValidUsername(username string) bool {
	if strings.TrimSpace(username) == "" {
		return false
	}
	return !strings.Contains(username, Separator)
}

// Parse splits raw into its environment, username, and remaining segments.
func Parse(raw string) (Identifier, error) {
	if !Valid(raw) {
		return Identifier{}, errs.Newf(errs.InvalidIdentifier, "invalid identifier %q", raw)
	}
	segments := strings.Split(raw, Separator)
	env, _ := ParseEnvironment(segments[0])
	return Identifier{
		Environment: env,
		Username:    segments[1],
		Segments:    segments[2:],
	}, nil
}

// Root builds the namespace root "environment.username" under which all of
// a user's blocks live.
func Root(env Environment, username string) string {
	return string(env) + Separator + username
}

// Extend appends suffix segments to a namespace root. Empty segments and
// segments containing the separator are rejected, as is a result exceeding
// MaxLength.
func Extend(root string, segments ...string) (string, error) {
	full := root
	for _, segment := range segments {
		if strings.TrimSpace(segment) == "" {
			return "", errs.New(errs.InvalidIdentifier, "identifier segment must not be empty")
		}
		if strings.Contains(segment, Separator) {
			return "", errs.Newf(errs.InvalidIdentifier, "identifier segment %q contains separator", segment)
		}
		full += Separator + segment
	}
	if len(full) > MaxLength {
		return "", errs.Newf(errs.InvalidIdentifier, "identifier exceeds %d characters", MaxLength)
	}
	return full, nil
}

// ExtendPath extends a namespace root with a dot-joined suffix as supplied
// on the wire. An empty suffix yields the root itself; a suffix starting
// with the separator is rejected.
func ExtendPath(root, suffix string) (string, error) {
	if suffix == "" {
		return root, nil
	}
	if strings.HasPrefix(suffix, Separator) {
		return "", errs.Newf(errs.InvalidIdentifier, "identifier suffix %q starts with separator", suffix)
	}
	return Extend(root, strings.Split(suffix, Separator)...)
}

// IsPrefixOf reports whether candidate's segment sequence is a prefix of
// target's, compared segment-wise. An identifier is a prefix of itself.
//
// This is deliberately not a raw string prefix test: "a.doc" is not a
// prefix of "a.doc2" even though the strings share a prefix.
func IsPrefixOf(candidate, target string) bool {
	cs := strings.Split(candidate, Separator)
	ts := strings.Split(target, Separator)
	if len(cs) > len(ts) {
		return false
	}
	for i, segment := range cs {
		if ts[i] != segment {
			return false
		}
	}
	return true
}
