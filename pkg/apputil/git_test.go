package apputil

import (
	"testing"
)

func TestParseGitSource(t *testing.T) {
	var tests = map[string]GitSource{
		"https://github.com/org/repo":                     {"https://github.com/org/repo", "repo", ""},
		"https://github.com/org/repo/sub/dir":             {"https://github.com/org/repo", "repo/sub/dir", ""},
		"https://github.com/org/repo/tree/master/sub/dir": {"https://github.com/org/repo", "repo/sub/dir", ""},
		"https://github.com/org/repo/tree/rev/sub/dir":    {"https://github.com/org/repo", "repo/sub/dir", "rev"},
		"https://bitbucket.org/org/repo/sub/dir":          {"https://bitbucket.org/org/repo", "repo/sub/dir", ""},
		"https://bitbucket.org/org/repo/src/rev/sub/dir":  {"https://bitbucket.org/org/repo", "repo/sub/dir", "rev"},
		"git@github.com:org/repo.git":                     {"git@github.com:org/repo.git", "repo", ""},
		"git@github.com:org/repo.git/sub/dir":             {"git@github.com:org/repo.git", "repo/sub/dir", ""},
	}
	for r, want := range tests {
		got, err := ParseGitSource(r)
		if err != nil {
			t.Fatalf("Parse url '%s' error: %v", r, err)
		}
		if got != want {
			t.Errorf("Parse url '%s' error: expected %v, got %v", r, want, got)
		}
	}
}

func TestParseGitSourceInvalid(t *testing.T) {
	for _, r := range []string{"https://github.com/org", "://bad", ""} {
		if _, err := ParseGitSource(r); err == nil {
			t.Errorf("'%s': expected an error", r)
		}
	}
}
