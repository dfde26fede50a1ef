package campaign

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/zaptalk/zapcampaigns/internal/domain"
)

// ConnectionSelector picks the outbound line for a send: the campaign's
// fixed connection, or round-robin across the connected members of its
// allow-list. The rotation index is process-local and resets on restart.
type ConnectionSelector struct {
	conns ConnectionRepository

	mu  sync.Mutex
	idx map[int64]int // campaign id -> next rotation position
}

func NewConnectionSelector(conns ConnectionRepository) *ConnectionSelector {
	return &ConnectionSelector{conns: conns, idx: make(map[int64]int)}
}

// Select resolves the connection for one dispatch of the campaign.
func (s *ConnectionSelector) Select(ctx context.Context, c *domain.Campaign) (*domain.Whatsapp, error) {
	if c.DispatchStrategy != domain.DispatchStrategyRoundRobin {
		return s.conns.Get(ctx, c.WhatsappId)
	}

	connected, err := s.conns.ListConnected(ctx, c.TenantId)
	if err != nil {
		return nil, errors.Wrap(err, "selector: list connected")
	}

	candidates := filterAllowed(connected, c.AllowedConnectionIds())
	if len(candidates) == 0 {
		// Nothing connected in the allow-list; fall back to the default line.
		return s.conns.Get(ctx, c.WhatsappId)
	}

	s.mu.Lock()
	pos := s.idx[c.ID] % len(candidates)
	s.idx[c.ID] = pos + 1
	s.mu.Unlock()

	return &candidates[pos], nil
}

func filterAllowed(connected []domain.Whatsapp, allowed []int64) []domain.Whatsapp {
	if len(allowed) == 0 {
		return connected
	}
	allowSet := make(map[int64]struct{}, len(allowed))
	for _, id := range allowed {
		allowSet[id] = struct{}{}
	}
	var out []domain.Whatsapp
	for _, w := range connected {
		if _, ok := allowSet[w.ID]; ok {
			out = append(out, w)
		}
	}
	return out
}
