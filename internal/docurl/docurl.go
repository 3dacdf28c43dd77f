// Package docurl builds URLs for documents that were not fetched from the web:
// content-addressed pseudo-URLs for submitted text and file URLs for inbox files.
package docurl

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path/filepath"
	"strings"
)

const (
	localScheme = "local://"
	fileScheme  = "file://"
)

// ContentURL returns a stable pseudo-URL for submitted text.
// Same text always yields the same URL.
func ContentURL(text string) string {
	hash := sha256.Sum256([]byte(text))
	return localScheme + hex.EncodeToString(hash[:])
}

// FileURL returns the document URL for a file on this instance.
// Paths are cleaned so /a/b, /a/b/ and /a/./b map to the same URL.
func FileURL(absolutePath string) string {
	return fileScheme + filepath.ToSlash(filepath.Clean(absolutePath))
}

// IsLocal reports whether u is only resolvable on the instance that indexed it.
func IsLocal(u string) bool {
	return strings.HasPrefix(u, localScheme) || strings.HasPrefix(u, fileScheme) || strings.HasPrefix(u, "/")
}

// Host returns the network host of u, or the scheme for pseudo-URLs.
func Host(u string) string {
	if strings.HasPrefix(u, localScheme) {
		return "local"
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	if parsed.Host != "" {
		return strings.ToLower(parsed.Host)
	}
	return parsed.Scheme
}

// Remote rewrites a peer-local URL into a retrieval URL served by that peer.
// Fully qualified web URLs are returned unchanged.
func Remote(peerBase, u string) string {
	if !IsLocal(u) {
		return u
	}
	return strings.TrimRight(peerBase, "/") + "/api/documents/content?url=" + url.QueryEscape(u)
}
