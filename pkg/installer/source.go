package installer

import (
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var shorthandRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// Source is a repository to install artifacts from
type Source struct {
	// Name is the source as given by the user, without the ref
	Name string
	// URL is what gets cloned
	URL string
	// Ref is a branch, tag or commit. Empty means the default branch.
	Ref string
}

// ParseSource accepts "owner/repo", a git URL or a local path, each
// optionally followed by "@ref"
func ParseSource(s string) (Source, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Source{}, errors.New("empty repository")
	}

	name, ref := s, ""
	if i := strings.LastIndex(s, "@"); i > 0 {
		before, after := s[:i], s[i+1:]
		if strings.Contains(before, "/") && after != "" && !strings.ContainsAny(after, ":/") {
			name, ref = before, after
		}
	}

	src := Source{Name: name, URL: name, Ref: ref}
	switch {
	case strings.Contains(name, "://"), strings.HasPrefix(name, "git@"):
	case shorthandRegex.MatchString(name):
		if _, err := os.Stat(name); err != nil {
			src.URL = "https://github.com/" + strings.TrimSuffix(name, ".git") + ".git"
		}
	default:
		if _, err := os.Stat(name); err != nil {
			return Source{}, errors.Errorf("%q is neither owner/repo, a git URL nor an existing path", name)
		}
	}
	return src, nil
}

func (s Source) String() string {
	if s.Ref == "" {
		return s.Name
	}
	return s.Name + "@" + s.Ref
}
