package services

import (
	"regexp"

	"github.com/ledgermate/recon-api/models"
)

// heuristicConfidence is the constant confidence for heuristic hits.
const heuristicConfidence = 0.6

type heuristic struct {
	re       *regexp.Regexp
	category string
}

// heuristicTable is the fixed fallback mapping, scanned in declaration order
// when no tenant rule matches. First match wins.
var heuristicTable = []heuristic{
	{regexp.MustCompile(`(?i)aws|amazon web services`), "Cloud Services"},
	{regexp.MustCompile(`(?i)google cloud|gcp|azure|digitalocean|hetzner|ovh`), "Cloud Services"},
	{regexp.MustCompile(`(?i)github|gitlab|atlassian|jetbrains|slack|notion`), "Software"},
	{regexp.MustCompile(`(?i)stripe|gocardless|paypal fee|adyen`), "Payment Fees"},
	{regexp.MustCompile(`(?i)edf|engie|totalenergies|veolia|suez`), "Utilities"},
	{regexp.MustCompile(`(?i)orange|sfr|bouygues|vodafone|o2|free mobile`), "Telecom"},
	{regexp.MustCompile(`(?i)axa|allianz|maif|macif|zurich insurance`), "Insurance"},
	{regexp.MustCompile(`(?i)uber|bolt|lyft|sncf|ratp|easyjet|ryanair|air france`), "Travel"},
	{regexp.MustCompile(`(?i)hotel|airbnb|booking\.com`), "Travel"},
	{regexp.MustCompile(`(?i)restaurant|deliveroo|uber eats|just eat`), "Meals"},
	{regexp.MustCompile(`(?i)carrefour|leclerc|auchan|lidl|aldi|tesco|sainsbury`), "Groceries"},
	{regexp.MustCompile(`(?i)salaire|salary|payroll|gusto|deel`), "Payroll"},
	{regexp.MustCompile(`(?i)loyer|rent\b|wework|regus`), "Rent"},
	{regexp.MustCompile(`(?i)urssaf|hmrc|impots|tax payment|vat`), "Taxes"},
	{regexp.MustCompile(`(?i)netflix|spotify|disney|prime video`), "Subscriptions"},
}

// resolveHeuristic scans the fixed table against normalized transaction text.
// Returns nil when nothing matches.
func resolveHeuristic(normalized string) *models.Categorization {
	for _, h := range heuristicTable {
		if h.re.MatchString(normalized) {
			return &models.Categorization{
				Category:   h.category,
				Confidence: heuristicConfidence,
				Source:     models.SourceHeuristic,
			}
		}
	}
	return nil
}
