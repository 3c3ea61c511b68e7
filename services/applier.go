package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ledgermate/recon-api/models"
	"github.com/ledgermate/recon-api/utils"
)

const (
	// DefaultBatchSize is how many rows one batch claims and updates.
	DefaultBatchSize = 500
	// DefaultMaxBatches is the soft cap on batches per rule; the only bound
	// on total work per invocation.
	DefaultMaxBatches = 100
	// batchLockTTL self-expires the tenant lock so a crashed run cannot
	// block future runs for longer than this.
	batchLockTTL = 120 * time.Second
	// appliedRuleConfidence is stamped on rows updated by the batch applier.
	appliedRuleConfidence = 0.9
)

// LockStore is the per-tenant advisory lock: non-blocking set-if-absent with
// a TTL. If the lock is held, acquisition fails immediately — no queuing.
type LockStore interface {
	TryAcquire(ctx context.Context, tenantID, holder string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, tenantID, holder string) error
}

// BatchUpdater claims and updates one batch of rows for a rule, skipping
// rows locked by concurrent writers, and reports how many rows changed.
type BatchUpdater interface {
	ApplyRuleBatch(ctx context.Context, tenantID string, rule models.Rule, batchSize int) (int64, error)
}

type ApplyOptions struct {
	BatchSize  int `json:"batchSize"`
	MaxBatches int `json:"maxBatches"`
}

type RuleStats struct {
	RuleID   string `json:"ruleId"`
	Pattern  string `json:"pattern"`
	Category string `json:"category"`
	Updated  int64  `json:"updated"`
	Batches  int    `json:"batches"`
}

type ApplyResult struct {
	TotalUpdatedRows int64       `json:"totalUpdatedRows"`
	PerRuleStats     []RuleStats `json:"perRuleStats"`
}

// RuleApplier applies the tenant's rules to previously uncategorized
// transactions in bounded batches under the per-tenant lock.
type RuleApplier struct {
	rules   RuleProvider
	locks   LockStore
	updater BatchUpdater
}

func NewRuleApplier(db *sql.DB, rules RuleProvider) *RuleApplier {
	return &RuleApplier{
		rules:   rules,
		locks:   &PGLockStore{db: db},
		updater: &pgBatchUpdater{db: db},
	}
}

// Apply runs acquire-lock → per-rule batch loops → release-lock. A failure
// inside one rule's loop aborts the run but still releases the lock and
// returns partial stats alongside the error. Immediately re-running after a
// successful run updates zero rows.
func (a *RuleApplier) Apply(ctx context.Context, tenantID string, opts ApplyOptions) (*ApplyResult, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxBatches <= 0 {
		opts.MaxBatches = DefaultMaxBatches
	}

	holder := uuid.NewString()
	acquired, err := a.locks.TryAcquire(ctx, tenantID, holder, batchLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire batch lock: %w", err)
	}
	if !acquired {
		return nil, ErrLockConflict
	}
	defer func() {
		// Release on every exit path. Context may already be dead, so the
		// release runs on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.locks.Release(releaseCtx, tenantID, holder); err != nil {
			utils.Errorf("[Applier] failed to release lock for tenant %s: %v", tenantID, err)
		}
	}()

	rules, err := a.rules.ActiveRules(ctx, tenantID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	result := &ApplyResult{PerRuleStats: []RuleStats{}}
	for _, rule := range rules {
		stats := RuleStats{RuleID: rule.ID, Pattern: rule.Pattern, Category: rule.Category}
		for stats.Batches < opts.MaxBatches {
			updated, err := a.updater.ApplyRuleBatch(ctx, tenantID, rule, opts.BatchSize)
			if err != nil {
				result.PerRuleStats = append(result.PerRuleStats, stats)
				return result, fmt.Errorf("rule %s aborted after %d batch(es): %w", rule.ID, stats.Batches, err)
			}
			stats.Batches++
			if updated == 0 {
				break
			}
			stats.Updated += updated
			result.TotalUpdatedRows += updated
		}
		result.PerRuleStats = append(result.PerRuleStats, stats)
	}

	utils.Infof("[Applier] tenant %s: %d rule(s), %d row(s) updated", tenantID, len(rules), result.TotalUpdatedRows)
	return result, nil
}

// PGLockStore implements the advisory lock as a conditional upsert on the
// batch_locks table: one row per tenant, expired rows can be taken over.
type PGLockStore struct {
	db *sql.DB
}

func NewPGLockStore(db *sql.DB) *PGLockStore {
	return &PGLockStore{db: db}
}

func (l *PGLockStore) TryAcquire(ctx context.Context, tenantID, holder string, ttl time.Duration) (bool, error) {
	result, err := l.db.ExecContext(ctx, `
		INSERT INTO batch_locks (tenant_id, locked_by, expires_at)
		VALUES ($1, $2, NOW() + $3 * INTERVAL '1 second')
		ON CONFLICT (tenant_id) DO UPDATE
		SET locked_by = EXCLUDED.locked_by, expires_at = EXCLUDED.expires_at
		WHERE batch_locks.expires_at < NOW()
	`, tenantID, holder, int(ttl.Seconds()))
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (l *PGLockStore) Release(ctx context.Context, tenantID, holder string) error {
	_, err := l.db.ExecContext(ctx,
		"DELETE FROM batch_locks WHERE tenant_id = $1 AND locked_by = $2", tenantID, holder)
	return err
}

// ReapExpired clears lock rows whose TTL has passed. Run periodically from
// main; takeover on acquire already handles correctness, this just keeps the
// table tidy.
func (l *PGLockStore) ReapExpired(ctx context.Context) (int64, error) {
	result, err := l.db.ExecContext(ctx, "DELETE FROM batch_locks WHERE expires_at < NOW()")
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// pgBatchUpdater claims one batch with FOR UPDATE SKIP LOCKED and updates it
// in the same statement, so rows held by concurrent manual edits are skipped
// instead of waited on.
type pgBatchUpdater struct {
	db *sql.DB
}

func (u *pgBatchUpdater) ApplyRuleBatch(ctx context.Context, tenantID string, rule models.Rule, batchSize int) (int64, error) {
	match := "(description ILIKE $4 OR counterparty ILIKE $4)"
	pattern := "%" + likeEscape(strings.ToLower(rule.Pattern)) + "%"
	if models.IsRegexPattern(rule.Pattern) {
		match = "(description ~* $4 OR counterparty ~* $4)"
		pattern = models.RegexBody(rule.Pattern)
	}

	query := fmt.Sprintf(`
		UPDATE transactions
		SET category = $2, category_confidence = $5, category_source = 'rule', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM transactions
			WHERE tenant_id = $1
			  AND (category IS NULL OR category <> $2)
			  AND %s
			ORDER BY id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
	`, match)

	result, err := u.db.ExecContext(ctx, query, tenantID, rule.Category, batchSize, pattern, appliedRuleConfidence)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likeEscape(s string) string {
	return likeEscaper.Replace(s)
}
