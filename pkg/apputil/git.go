package apputil

import (
	"fmt"
	"net/url"
	"strings"
)

// GitSource is a build source split into the repository to clone, the
// directory inside it and an optional revision.
type GitSource struct {
	Repository string `json:"repository"`
	Path       string `json:"path"`
	Revision   string `json:"revision,omitempty"`
}

// Hosts whose browse URLs carry a revision segment: /org/repo/<seg>/<rev>/dir.
var revisionSegments = map[string]string{
	"github.com":    "tree",
	"bitbucket.org": "src",
}

// ParseGitSource understands https URLs, browse URLs of known hosts and scp
// like git@host:org/repo.git forms, optionally followed by a sub directory.
func ParseGitSource(raw string) (GitSource, error) {
	src := GitSource{Repository: raw}
	var host, path string
	scp := false
	if i := strings.Index(raw, "@"); i >= 0 {
		rest := raw[i+1:]
		j := strings.IndexAny(rest, ":/")
		if j < 0 {
			return src, fmt.Errorf("invalid git url %q", raw)
		}
		host, path, scp = rest[:j], "/"+rest[j+1:], true
	} else {
		u, err := url.Parse(raw)
		if err != nil {
			return src, fmt.Errorf("invalid git url %q: %v", raw, err)
		}
		host, path = u.Hostname(), u.Path
	}
	parts := strings.Split(path, "/")
	if len(parts) < 3 || parts[2] == "" {
		return src, fmt.Errorf("git url %q has no repository", raw)
	}
	src.Path = strings.TrimSuffix(parts[2], ".git")

	var dir []string
	suffix := ""
	if seg, ok := revisionSegments[host]; ok && !scp && len(parts) > 4 && parts[3] == seg {
		if parts[4] != "master" {
			src.Revision = parts[4]
		}
		suffix = "/" + parts[3] + "/" + parts[4]
		dir = parts[5:]
	} else if len(parts) > 3 {
		dir = parts[3:]
	}
	if len(dir) > 0 {
		sub := "/" + strings.Join(dir, "/")
		src.Path += sub
		src.Repository = strings.TrimSuffix(strings.TrimSuffix(raw, sub), suffix)
	}
	return src, nil
}
