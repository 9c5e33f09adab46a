package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/garyjia/quotation-workflow/internal/application/port"
)

// StaticApproverDirectory resolves approvers from a configured business-unit map
type StaticApproverDirectory struct {
	defaultApprover string
	byUnit          map[string]string
}

// NewStaticApproverDirectory creates a directory; unit keys are matched case-insensitively
func NewStaticApproverDirectory(defaultApprover string, byUnit map[string]string) *StaticApproverDirectory {
	normalized := make(map[string]string, len(byUnit))
	for unit, approver := range byUnit {
		normalized[strings.ToLower(unit)] = approver
	}
	return &StaticApproverDirectory{
		defaultApprover: defaultApprover,
		byUnit:          normalized,
	}
}

// ResolveApprover implements port.ApproverDirectory
func (d *StaticApproverDirectory) ResolveApprover(ctx context.Context, businessUnit string) (string, error) {
	if approver, ok := d.byUnit[strings.ToLower(businessUnit)]; ok && approver != "" {
		return approver, nil
	}
	if d.defaultApprover == "" {
		return "", fmt.Errorf("no approver configured for business unit %q", businessUnit)
	}
	return d.defaultApprover, nil
}

var _ port.ApproverDirectory = (*StaticApproverDirectory)(nil)

type cachedApprover struct {
	approver string
	loadedAt time.Time
}

// CachedApproverDirectory wraps a directory with a TTL-bound cache
type CachedApproverDirectory struct {
	inner port.ApproverDirectory
	ttl   time.Duration
	now   func() time.Time

	mu      sync.RWMutex
	entries map[string]cachedApprover
}

// NewCachedApproverDirectory creates a cache in front of inner; ttl <= 0 disables caching
func NewCachedApproverDirectory(inner port.ApproverDirectory, ttl time.Duration) *CachedApproverDirectory {
	return &CachedApproverDirectory{
		inner:   inner,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cachedApprover),
	}
}

// ResolveApprover implements port.ApproverDirectory
func (c *CachedApproverDirectory) ResolveApprover(ctx context.Context, businessUnit string) (string, error) {
	key := strings.ToLower(businessUnit)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.now().Sub(entry.loadedAt) < c.ttl {
		return entry.approver, nil
	}

	approver, err := c.inner.ResolveApprover(ctx, businessUnit)
	if err != nil {
		return "", err
	}

	if c.ttl > 0 {
		c.mu.Lock()
		c.entries[key] = cachedApprover{approver: approver, loadedAt: c.now()}
		c.mu.Unlock()
	}
	return approver, nil
}

// Invalidate drops every cached entry
func (c *CachedApproverDirectory) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cachedApprover)
}

var _ port.ApproverDirectory = (*CachedApproverDirectory)(nil)
