package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/ledgermate/recon-api/models"
	"github.com/ledgermate/recon-api/utils"
)

// DefaultRuleCacheTTL is how long a fetched rule list stays fresh.
const DefaultRuleCacheTTL = 5 * time.Minute

// RuleLoader fetches the active rules for one tenant from the backing store,
// ordered by priority ascending then confidence descending.
type RuleLoader func(ctx context.Context, tenantID string) ([]models.Rule, error)

type ruleCacheEntry struct {
	rules     []models.Rule
	fetchedAt time.Time
}

// RuleCache is a per-tenant read-through cache over a RuleLoader. A reload
// failure serves the last good list instead of failing the caller; the error
// only surfaces when no list was ever loaded for that tenant.
type RuleCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	load    RuleLoader
	entries map[string]*ruleCacheEntry
	now     func() time.Time
}

func NewRuleCache(load RuleLoader, ttl time.Duration) *RuleCache {
	if ttl <= 0 {
		ttl = DefaultRuleCacheTTL
	}
	return &RuleCache{
		ttl:     ttl,
		load:    load,
		entries: make(map[string]*ruleCacheEntry),
		now:     time.Now,
	}
}

// ActiveRules returns the cached rule list if fetched within the TTL window,
// otherwise reloads from the backing store.
func (c *RuleCache) ActiveRules(ctx context.Context, tenantID string, forceRefresh bool) ([]models.Rule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[tenantID]
	if ok && !forceRefresh && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.rules, nil
	}

	rules, err := c.load(ctx, tenantID)
	if err != nil {
		if ok {
			// Degraded but usable: keep serving the stale list.
			utils.Warnf("[RuleCache] reload failed for tenant %s, serving stale cache: %v", tenantID, err)
			return entry.rules, nil
		}
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	c.entries[tenantID] = &ruleCacheEntry{rules: rules, fetchedAt: c.now()}
	return rules, nil
}

// Invalidate drops the cached list for a tenant. Called after every rule
// create/update/delete.
func (c *RuleCache) Invalidate(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tenantID)
}

// RuleService owns rule CRUD and the read-through cache in front of it.
type RuleService struct {
	db    *sql.DB
	cache *RuleCache
}

func NewRuleService(db *sql.DB) *RuleService {
	s := &RuleService{db: db}
	s.cache = NewRuleCache(s.loadActiveRules, DefaultRuleCacheTTL)
	return s
}

// Cache exposes the rule cache so the resolver and the batch applier share
// one instance instead of reaching for hidden global state.
func (s *RuleService) Cache() *RuleCache {
	return s.cache
}

func (s *RuleService) loadActiveRules(ctx context.Context, tenantID string) ([]models.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, pattern, category, priority, confidence, active, created_at
		FROM rules
		WHERE tenant_id = $1 AND active = TRUE
		ORDER BY priority ASC, confidence DESC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.Rule
	for rows.Next() {
		var r models.Rule
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Pattern, &r.Category, &r.Priority, &r.Confidence, &r.Active, &r.CreatedAt); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// ListRules returns every rule for the tenant, active or not.
func (s *RuleService) ListRules(ctx context.Context, tenantID string) ([]models.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, pattern, category, priority, confidence, active, created_at
		FROM rules
		WHERE tenant_id = $1
		ORDER BY priority ASC, confidence DESC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := []models.Rule{}
	for rows.Next() {
		var r models.Rule
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Pattern, &r.Category, &r.Priority, &r.Confidence, &r.Active, &r.CreatedAt); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// CreateRule inserts a rule and invalidates the cache.
func (s *RuleService) CreateRule(ctx context.Context, rule models.Rule) (models.Rule, error) {
	if err := models.ValidatePattern(rule.Pattern); err != nil {
		return models.Rule{}, fmt.Errorf("invalid pattern: %w", err)
	}
	if rule.Confidence <= 0 || rule.Confidence > 1 {
		rule.Confidence = 0.9
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO rules (tenant_id, pattern, category, priority, confidence, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id, created_at
	`, rule.TenantID, rule.Pattern, rule.Category, rule.Priority, rule.Confidence).Scan(&rule.ID, &rule.CreatedAt)
	if err != nil {
		return models.Rule{}, fmt.Errorf("failed to create rule: %w", err)
	}
	rule.Active = true

	s.cache.Invalidate(rule.TenantID)
	return rule, nil
}

// DeleteRule removes a rule and invalidates the cache.
func (s *RuleService) DeleteRule(ctx context.Context, tenantID, ruleID string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM rules WHERE id = $1 AND tenant_id = $2", ruleID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}

	s.cache.Invalidate(tenantID)
	return nil
}
