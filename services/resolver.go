package services

import (
	"context"
	"strings"

	"github.com/ledgermate/recon-api/models"
	"github.com/ledgermate/recon-api/utils"
)

// RuleProvider is the slice of RuleCache the resolver needs.
type RuleProvider interface {
	ActiveRules(ctx context.Context, tenantID string, forceRefresh bool) ([]models.Rule, error)
}

// Suggester is an external best-guess categorizer. Treated as unreliable:
// any error means "no suggestion".
type Suggester interface {
	SuggestCategory(ctx context.Context, text string, categories []string) (*models.Categorization, error)
}

// ResolveOptions toggle cascade stages per call. The zero value disables the
// optional stages; use DefaultResolveOptions for the full cascade.
type ResolveOptions struct {
	UseHeuristics     bool
	UseAI             bool
	ForceRefreshRules bool
	// Vocabulary overrides the category list offered to the AI stage.
	// Empty means: derive it from the tenant's distinct rule categories.
	Vocabulary []string
}

func DefaultResolveOptions() ResolveOptions {
	return ResolveOptions{UseHeuristics: true, UseAI: true}
}

// CategoryResolver composes rules, the heuristic table, and the generative
// suggester into one cascading decision. First stage to yield a value wins.
type CategoryResolver struct {
	rules RuleProvider
	ai    Suggester
}

func NewCategoryResolver(rules RuleProvider, ai Suggester) *CategoryResolver {
	return &CategoryResolver{rules: rules, ai: ai}
}

// resolveStep is one fallible cascade stage. A nil result means "didn't
// resolve, try the next stage"; errors are logged, never fatal.
type resolveStep func(ctx context.Context, tx models.Transaction, text string, opts ResolveOptions) (*models.Categorization, error)

// Resolve runs the cascade for one transaction. Returns nil when every stage
// fails: the transaction stays uncategorized, callers must not invent a
// default. Resolution never mutates storage; callers persist the result.
func (r *CategoryResolver) Resolve(ctx context.Context, tx models.Transaction, opts ResolveOptions) *models.Categorization {
	text := NormalizeTransactionText(tx)

	steps := []resolveStep{r.fromRules, r.fromHeuristics, r.fromAI}
	for _, step := range steps {
		result, err := step(ctx, tx, text, opts)
		if err != nil {
			utils.Warnf("[Resolver] stage failed for transaction %s, falling through: %v", tx.ID, err)
			continue
		}
		if result != nil {
			result.Clamp()
			return result
		}
	}
	return nil
}

func (r *CategoryResolver) fromRules(ctx context.Context, tx models.Transaction, text string, opts ResolveOptions) (*models.Categorization, error) {
	rules, err := r.rules.ActiveRules(ctx, tx.TenantID, opts.ForceRefreshRules)
	if err != nil {
		return nil, err
	}
	for _, rule := range rules {
		if rule.Matches(text) {
			return &models.Categorization{
				Category:   rule.Category,
				Confidence: rule.Confidence,
				Source:     models.SourceRule,
			}, nil
		}
	}
	return nil, nil
}

func (r *CategoryResolver) fromHeuristics(_ context.Context, _ models.Transaction, text string, opts ResolveOptions) (*models.Categorization, error) {
	if !opts.UseHeuristics {
		return nil, nil
	}
	return resolveHeuristic(text), nil
}

func (r *CategoryResolver) fromAI(ctx context.Context, tx models.Transaction, text string, opts ResolveOptions) (*models.Categorization, error) {
	if !opts.UseAI || r.ai == nil {
		return nil, nil
	}

	vocabulary := opts.Vocabulary
	if len(vocabulary) == 0 {
		vocabulary = r.categoryVocabulary(ctx, tx.TenantID)
	}
	if len(vocabulary) == 0 {
		return nil, nil
	}

	result, err := r.ai.SuggestCategory(ctx, text, vocabulary)
	if err != nil {
		// suggestion_unavailable: never propagated as fatal.
		return nil, err
	}
	if result == nil || result.Category == "" {
		return nil, nil
	}
	result.Source = models.SourceAI
	return result, nil
}

// categoryVocabulary derives the AI candidate list from distinct rule
// categories. Rule load errors just mean an empty vocabulary.
func (r *CategoryResolver) categoryVocabulary(ctx context.Context, tenantID string) []string {
	rules, err := r.rules.ActiveRules(ctx, tenantID, false)
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var vocabulary []string
	for _, rule := range rules {
		if !seen[rule.Category] {
			seen[rule.Category] = true
			vocabulary = append(vocabulary, rule.Category)
		}
	}
	return vocabulary
}

// NormalizeTransactionText flattens the transaction's text fields into one
// lowercase, whitespace-collapsed string for pattern matching.
func NormalizeTransactionText(tx models.Transaction) string {
	joined := strings.Join([]string{tx.Description, tx.Counterparty, tx.Reference, tx.AccountName}, " ")
	joined = strings.ToLower(joined)
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(joined, " "))
}
