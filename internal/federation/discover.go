package federation

import (
	"context"
	"errors"
	"net/url"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/podsearch/internal/models"
	"github.com/hyperjump/podsearch/internal/vector"
	apperrors "github.com/hyperjump/podsearch/pkg/errors"
)

// Peer is a discovered instance able to answer queries in one language.
type Peer struct {
	Info      models.InstanceInfo
	Signature vector.Sparse
}

// FetchSignature returns a peer's normalised pod-summary vector for lang.
func (c *Client) FetchSignature(ctx context.Context, peer, lang string) (vector.Sparse, error) {
	var dense []float64
	if err := c.getJSON(ctx, "signature", peer, PathSignature+url.PathEscape(lang), &dense); err != nil {
		return vector.Sparse{}, err
	}
	return vector.FromDense(dense), nil
}

// FetchIdentity returns a peer's display metadata. When the identity call fails the
// identity is derived from the peer URL alone.
func (c *Client) FetchIdentity(ctx context.Context, peer string) models.InstanceInfo {
	var info models.InstanceInfo
	if err := c.getJSON(ctx, "identity", peer, PathIdentity, &info); err != nil {
		c.logger.Warn("peer identity unavailable, using hostname", zap.String("peer", peer), zap.Error(err))
		return fallbackIdentity(peer)
	}
	info.URL = peer
	if info.SiteName == "" {
		info.SiteName = fallbackIdentity(peer).SiteName
	}
	return info
}

func fallbackIdentity(peer string) models.InstanceInfo {
	info := models.InstanceInfo{URL: peer}
	if u, err := url.Parse(peer); err == nil {
		info.SiteName = u.Hostname()
	}
	return info
}

// Discover queries every peer concurrently and keeps those that list lang and return
// a signature for it. Unreachable or unsuitable peers are logged and skipped. A peer
// naming this instance is a configuration error: it is skipped and reported in the
// returned error, alongside the usable peers.
func (c *Client) Discover(ctx context.Context, peers []string, lang string) ([]*Peer, error) {
	found := make([]*Peer, len(peers))
	selfErrs := make([]error, len(peers))

	g, gctx := errgroup.WithContext(ctx)
	if c.cfg.Workers > 0 {
		g.SetLimit(c.cfg.Workers)
	}
	for i, base := range peers {
		if samePeer(base, c.siteURL) {
			selfErrs[i] = &apperrors.FederationError{Peer: base, Op: "discover", Err: apperrors.ErrSelfFederation}
			c.logger.Error("peer list contains this instance", zap.String("peer", base))
			continue
		}
		g.Go(func() error {
			p, err := c.discoverOne(gctx, base, lang)
			if err != nil {
				c.logger.Warn("peer skipped", zap.String("peer", base), zap.String("language", lang), zap.Error(err))
				return nil
			}
			found[i] = p
			return nil
		})
	}
	_ = g.Wait()

	var out []*Peer
	for _, p := range found {
		if p != nil {
			out = append(out, p)
		}
	}
	return out, errors.Join(selfErrs...)
}

var errLanguageUnsupported = errors.New("language not supported")

func (c *Client) discoverOne(ctx context.Context, base, lang string) (*Peer, error) {
	langs, err := c.Languages(ctx, base)
	if err != nil {
		return nil, err
	}
	supported := false
	for _, l := range langs {
		if l == lang {
			supported = true
			break
		}
	}
	if !supported {
		return nil, &apperrors.FederationError{Peer: base, Op: "languages", Err: errLanguageUnsupported}
	}
	sig, err := c.FetchSignature(ctx, base, lang)
	if err != nil {
		return nil, err
	}
	return &Peer{Info: c.FetchIdentity(ctx, base), Signature: sig}, nil
}

// SelectPeers ranks peers by the cosine between q and their signature, computed over
// the non-zero dimensions of q only. Peers scoring zero or NaN are dropped; at most k
// peers are returned (k <= 0 means all).
func SelectPeers(q vector.Sparse, peers []*Peer, k int) []*Peer {
	type scored struct {
		peer  *Peer
		score float64
	}
	var ranked []scored
	for _, p := range peers {
		if s := vector.CosineOn(q, p.Signature); s != 0 {
			ranked = append(ranked, scored{peer: p, score: s})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]*Peer, len(ranked))
	for i, s := range ranked {
		out[i] = s.peer
	}
	return out
}
