package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgermate/recon-api/models"
)

type fakeRuleProvider struct {
	rules []models.Rule
	err   error
	calls int
}

func (f *fakeRuleProvider) ActiveRules(_ context.Context, _ string, _ bool) ([]models.Rule, error) {
	f.calls++
	return f.rules, f.err
}

type fakeSuggester struct {
	result *models.Categorization
	err    error
	calls  int
}

func (f *fakeSuggester) SuggestCategory(_ context.Context, _ string, _ []string) (*models.Categorization, error) {
	f.calls++
	return f.result, f.err
}

func cloudRule(pattern, category string, priority int, confidence float64) models.Rule {
	return models.Rule{
		ID: "rule-" + category, TenantID: "t1",
		Pattern: pattern, Category: category,
		Priority: priority, Confidence: confidence, Active: true,
	}
}

func TestResolve_RuleMatchWins(t *testing.T) {
	rules := &fakeRuleProvider{rules: []models.Rule{
		cloudRule("aws", "Cloud Infrastructure", 1, 0.95),
	}}
	ai := &fakeSuggester{result: &models.Categorization{Category: "Other", Confidence: 0.5}}
	resolver := NewCategoryResolver(rules, ai)

	tx := models.Transaction{TenantID: "t1", Description: "AWS EMEA invoice 1234"}
	got := resolver.Resolve(context.Background(), tx, DefaultResolveOptions())

	require.NotNil(t, got)
	assert.Equal(t, "Cloud Infrastructure", got.Category)
	assert.Equal(t, 0.95, got.Confidence)
	assert.Equal(t, models.SourceRule, got.Source)
	assert.Zero(t, ai.calls, "later stages must not run once a rule matched")
}

func TestResolve_FirstMatchingRuleWins(t *testing.T) {
	// Provider returns rules pre-ordered by priority; first match ends the scan.
	rules := &fakeRuleProvider{rules: []models.Rule{
		cloudRule("invoice", "Invoices", 1, 0.9),
		cloudRule("aws", "Cloud Infrastructure", 2, 0.95),
	}}
	resolver := NewCategoryResolver(rules, nil)

	tx := models.Transaction{TenantID: "t1", Description: "AWS EMEA invoice 1234"}
	got := resolver.Resolve(context.Background(), tx, DefaultResolveOptions())

	require.NotNil(t, got)
	assert.Equal(t, "Invoices", got.Category)
}

func TestResolve_HeuristicFallback(t *testing.T) {
	rules := &fakeRuleProvider{rules: []models.Rule{
		cloudRule("stripe", "Payment Fees", 1, 0.9),
	}}
	resolver := NewCategoryResolver(rules, &fakeSuggester{})

	tx := models.Transaction{TenantID: "t1", Counterparty: "AMAZON WEB SERVICES EMEA"}
	got := resolver.Resolve(context.Background(), tx, DefaultResolveOptions())

	require.NotNil(t, got)
	assert.Equal(t, "Cloud Services", got.Category)
	assert.Equal(t, 0.6, got.Confidence)
	assert.Equal(t, models.SourceHeuristic, got.Source)
}

func TestResolve_AIFallback(t *testing.T) {
	rules := &fakeRuleProvider{rules: []models.Rule{
		cloudRule("stripe", "Payment Fees", 1, 0.9),
	}}
	ai := &fakeSuggester{result: &models.Categorization{Category: "Office Supplies", Confidence: 0.7}}
	resolver := NewCategoryResolver(rules, ai)

	tx := models.Transaction{TenantID: "t1", Description: "VIKING DIRECT order 81231"}
	got := resolver.Resolve(context.Background(), tx, DefaultResolveOptions())

	require.NotNil(t, got)
	assert.Equal(t, "Office Supplies", got.Category)
	assert.Equal(t, models.SourceAI, got.Source)
	assert.Equal(t, 1, ai.calls)
}

func TestResolve_AIConfidenceClamped(t *testing.T) {
	rules := &fakeRuleProvider{rules: []models.Rule{
		cloudRule("stripe", "Payment Fees", 1, 0.9),
	}}
	ai := &fakeSuggester{result: &models.Categorization{Category: "Office Supplies", Confidence: 3.5}}
	resolver := NewCategoryResolver(rules, ai)

	got := resolver.Resolve(context.Background(),
		models.Transaction{TenantID: "t1", Description: "VIKING DIRECT"}, DefaultResolveOptions())

	require.NotNil(t, got)
	assert.Equal(t, 1.0, got.Confidence)
}

func TestResolve_NilWhenEverythingFails(t *testing.T) {
	rules := &fakeRuleProvider{rules: []models.Rule{
		cloudRule("stripe", "Payment Fees", 1, 0.9),
	}}
	ai := &fakeSuggester{err: errors.New("rate limited")}
	resolver := NewCategoryResolver(rules, ai)

	got := resolver.Resolve(context.Background(),
		models.Transaction{TenantID: "t1", Description: "WIRE TRANSFER 99812"}, DefaultResolveOptions())
	assert.Nil(t, got, "unresolved transactions stay uncategorized")
}

func TestResolve_RuleLoadErrorFallsThrough(t *testing.T) {
	rules := &fakeRuleProvider{err: errors.New("db down")}
	resolver := NewCategoryResolver(rules, nil)

	tx := models.Transaction{TenantID: "t1", Description: "GITHUB INC"}
	got := resolver.Resolve(context.Background(), tx, ResolveOptions{UseHeuristics: true})

	require.NotNil(t, got, "heuristics still run when the rule stage errors")
	assert.Equal(t, "Software", got.Category)
}

func TestResolve_StageToggles(t *testing.T) {
	rules := &fakeRuleProvider{}
	ai := &fakeSuggester{result: &models.Categorization{Category: "Other", Confidence: 0.4}}
	resolver := NewCategoryResolver(rules, ai)
	tx := models.Transaction{TenantID: "t1", Description: "NETFLIX.COM"}

	got := resolver.Resolve(context.Background(), tx, ResolveOptions{UseHeuristics: false, UseAI: false})
	assert.Nil(t, got)
	assert.Zero(t, ai.calls)

	got = resolver.Resolve(context.Background(), tx, ResolveOptions{UseHeuristics: true, UseAI: false})
	require.NotNil(t, got)
	assert.Equal(t, "Subscriptions", got.Category)
}

func TestResolve_AISkippedWithoutVocabulary(t *testing.T) {
	// No rules means no derived vocabulary; the AI stage must not be asked to
	// pick from an empty list.
	rules := &fakeRuleProvider{}
	ai := &fakeSuggester{result: &models.Categorization{Category: "Other", Confidence: 0.4}}
	resolver := NewCategoryResolver(rules, ai)

	got := resolver.Resolve(context.Background(),
		models.Transaction{TenantID: "t1", Description: "WIRE TRANSFER"}, DefaultResolveOptions())
	assert.Nil(t, got)
	assert.Zero(t, ai.calls)
}

func TestResolve_Deterministic(t *testing.T) {
	rules := &fakeRuleProvider{rules: []models.Rule{
		cloudRule("aws", "Cloud Infrastructure", 1, 0.95),
		cloudRule("github", "Software", 2, 0.9),
	}}
	resolver := NewCategoryResolver(rules, nil)
	tx := models.Transaction{TenantID: "t1", Description: "AWS EMEA github billing"}

	first := resolver.Resolve(context.Background(), tx, DefaultResolveOptions())
	require.NotNil(t, first)
	for i := 0; i < 10; i++ {
		again := resolver.Resolve(context.Background(), tx, DefaultResolveOptions())
		require.NotNil(t, again)
		assert.Equal(t, *first, *again)
	}
}

func TestNormalizeTransactionText(t *testing.T) {
	tx := models.Transaction{
		Description:  "  CARD  Payment\t",
		Counterparty: "GOOGLE *CLOUD",
		Reference:    "REF-991",
		AccountName:  "Main  Account",
	}
	assert.Equal(t, "card payment google *cloud ref-991 main account", NormalizeTransactionText(tx))

	assert.Equal(t, "", NormalizeTransactionText(models.Transaction{}))
}
