package federation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// discoveryTimeout bounds one full discovery round across all peers.
const discoveryTimeout = 30 * time.Second

type discovery struct {
	peers []*Peer
	err   error
	at    time.Time
}

// Registry caches discovered peers per language. Concurrent refreshes of the same
// language share one discovery round.
type Registry struct {
	client *Client
	peers  []string
	ttl    time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]discovery
	group   singleflight.Group
}

func newRegistry(c *Client, peers []string, ttl time.Duration) *Registry {
	return &Registry{
		client:  c,
		peers:   peers,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]discovery),
	}
}

// Configured returns the peer base URLs from the peer list.
func (r *Registry) Configured() []string {
	return append([]string(nil), r.peers...)
}

// Peers returns the usable peers for lang, discovering them when the cache is
// empty or older than the refresh interval. If ctx ends before a refresh finishes
// the previous peers are returned.
func (r *Registry) Peers(ctx context.Context, lang string) []*Peer {
	if len(r.peers) == 0 {
		return nil
	}
	r.mu.RLock()
	d, ok := r.entries[lang]
	r.mu.RUnlock()
	if ok && (r.ttl <= 0 || r.now().Sub(d.at) < r.ttl) {
		return d.peers
	}
	if peers := r.Refresh(ctx, lang); peers != nil || ctx.Err() == nil {
		return peers
	}
	return d.peers
}

// Refresh runs discovery for lang now. Discovery continues in the background when
// ctx ends first; the caller then gets no peers.
func (r *Registry) Refresh(ctx context.Context, lang string) []*Peer {
	ch := r.group.DoChan(lang, func() (any, error) {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), discoveryTimeout)
		defer cancel()
		peers, err := r.client.Discover(dctx, r.peers, lang)
		if err != nil {
			r.client.logger.Error("federation misconfigured", zap.String("language", lang), zap.Error(err))
		}
		r.mu.Lock()
		r.entries[lang] = discovery{peers: peers, err: err, at: r.now()}
		r.mu.Unlock()
		return peers, nil
	})
	select {
	case res := <-ch:
		peers, _ := res.Val.([]*Peer)
		return peers
	case <-ctx.Done():
		return nil
	}
}

// Err returns the configuration problem found by the last discovery for lang.
func (r *Registry) Err(lang string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[lang].err
}
