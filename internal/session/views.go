package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/passkeeper/internal/common"
	"github.com/dmitrijs2005/passkeeper/internal/vault"
)

// ItemViews computes the currently visible, decrypted item views of the
// unlocked session.
func (m *Manager) ItemViews(ctx context.Context) ([]*vault.ItemView, error) {
	m.mu.Lock()
	if m.state != StateLoggedInUnlocked {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: session is %s", common.ErrInvalidState, m.state)
	}
	userID := m.user.ID
	secretKey := m.itemEncryptionSecretKey
	m.mu.Unlock()

	views, err := m.provider.VisibleViews(ctx, userID)
	if err != nil {
		return nil, err
	}
	return m.provider.DecryptAll(ctx, views, secretKey), nil
}

// SubscribeItemViews registers an observer of the visible item views. The
// channel is buffered and coalescing: a slow consumer sees the latest
// snapshot, never a backlog. The returned function cancels the subscription.
func (m *Manager) SubscribeItemViews() (<-chan []*vault.ItemView, func()) {
	ch := make(chan []*vault.ItemView, 1)
	m.mu.Lock()
	m.viewSubscribers[ch] = struct{}{}
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		delete(m.viewSubscribers, ch)
		m.mu.Unlock()
	}
}

// watchItems follows the store change feed for the lifetime of the unlocked
// session and republishes the visible views whenever they actually changed.
// Unchanged recomputations (a write that produced an identical visible set)
// are suppressed.
func (m *Manager) watchItems(ctx context.Context) {
	feed, unsubscribe := m.store.Subscribe()
	defer unsubscribe()

	m.recomputeViews(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-feed:
			m.recomputeViews(ctx)
		}
	}
}

func (m *Manager) recomputeViews(ctx context.Context) {
	views, err := m.ItemViews(ctx)
	if err != nil {
		m.log.Warn(ctx, "recomputing item views failed", "error", err)
		return
	}

	sig := viewsSignature(views)
	m.mu.Lock()
	if sig == m.lastViewsSig {
		m.mu.Unlock()
		return
	}
	m.lastViewsSig = sig
	subscribers := make([]chan []*vault.ItemView, 0, len(m.viewSubscribers))
	for ch := range m.viewSubscribers {
		subscribers = append(subscribers, ch)
	}
	m.mu.Unlock()

	for _, ch := range subscribers {
		// Coalesce: replace a pending, unconsumed snapshot.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- views:
		default:
		}
	}
}

// viewsSignature fingerprints a visible view set by identity and version so
// distinct-change detection does not depend on decrypted payload comparison.
func viewsSignature(views []*vault.ItemView) string {
	var b strings.Builder
	for _, v := range views {
		b.WriteString(v.Item.ID)
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(v.Item.Modified, 10))
		b.WriteByte(':')
		b.WriteString(v.Authorization.ID)
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(v.Authorization.Modified, 10))
		b.WriteByte(';')
	}
	return b.String()
}
