package federation

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
)

// ReadPeers parses a peer list: one base URL per line. Blank lines and lines
// starting with # are ignored, as are repeated entries.
func ReadPeers(r io.Reader) ([]string, error) {
	var peers []string
	seen := make(map[string]bool)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		entry := strings.TrimSpace(sc.Text())
		if entry == "" || strings.HasPrefix(entry, "#") {
			continue
		}
		u, err := url.Parse(entry)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("peers line %d: invalid peer URL %q", line, entry)
		}
		entry = strings.TrimRight(entry, "/")
		if seen[entry] {
			continue
		}
		seen[entry] = true
		peers = append(peers, entry)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read peers: %w", err)
	}
	return peers, nil
}

// LoadPeers reads the peer list at path. A missing file means no peers.
func LoadPeers(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open peers file: %w", err)
	}
	defer f.Close()
	return ReadPeers(f)
}

// samePeer reports whether two base URLs name the same instance.
func samePeer(a, b string) bool {
	return strings.TrimRight(a, "/") == strings.TrimRight(b, "/")
}
