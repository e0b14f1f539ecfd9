package meta

import (
	"fmt"
	"net/url"
	"strings"
)

// JoinURL joins basePath and filename with exactly one "/". Trailing slashes
// on basePath are stripped; filename is used as given.
//
//	JoinURL("", "meta.json")          == "/meta.json"
//	JoinURL("/static///", "meta.json") == "/static/meta.json"
func JoinURL(basePath, filename string) string {
	return strings.TrimRight(basePath, "/") + "/" + filename
}

// ResolveURL joins basePath and filename and resolves the result against
// origin the way a browser resolves a link on a page served from origin.
// With an empty origin the joined reference must already be absolute.
func ResolveURL(origin, basePath, filename string) (string, error) {
	joined := JoinURL(basePath, filename)
	ref, err := url.Parse(joined)
	if err != nil {
		return "", fmt.Errorf("parsing metadata reference %q: %w", joined, err)
	}

	if origin == "" {
		if !ref.IsAbs() {
			return "", fmt.Errorf("metadata URL %q is relative and no origin is configured", joined)
		}
		return ref.String(), nil
	}

	base, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("parsing origin %q: %w", origin, err)
	}
	if !base.IsAbs() {
		return "", fmt.Errorf("origin %q must be an absolute URL", origin)
	}
	return base.ResolveReference(ref).String(), nil
}
