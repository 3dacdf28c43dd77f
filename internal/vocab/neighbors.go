package vocab

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// NeighborTable holds precomputed nearest subwords per subword.
type NeighborTable struct {
	nns map[string][]string
}

// NewNeighborTable wraps a token -> neighbours map. The map must not be modified afterwards.
func NewNeighborTable(nns map[string][]string) *NeighborTable {
	if nns == nil {
		nns = map[string][]string{}
	}
	return &NeighborTable{nns: nns}
}

// ReadNeighbors parses "token<TAB>n1 n2 n3" lines, neighbours ordered nearest first.
func ReadNeighbors(r io.Reader) (*NeighborTable, error) {
	nns := make(map[string][]string)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		token, rest, ok := strings.Cut(text, "\t")
		if !ok {
			return nil, fmt.Errorf("neighbours line %d: missing tab", line)
		}
		nns[token] = strings.Fields(rest)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read neighbours: %w", err)
	}
	return NewNeighborTable(nns), nil
}

// Neighbors returns the neighbours of token, nearest first.
func (t *NeighborTable) Neighbors(token string) []string {
	if t == nil {
		return nil
	}
	return t.nns[token]
}

// Len returns the number of tokens with neighbours.
func (t *NeighborTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.nns)
}
