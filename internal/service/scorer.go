package service

import (
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"

	"github.com/esoto/expense-tracker-sub008/internal/database/repository"
)

// Weights are the scorer's component weights. Amount and merchant dominate;
// date and description are secondary.
type Weights struct {
	Amount      float64
	Merchant    float64
	Date        float64
	Description float64
}

// DefaultWeights mirror the config defaults.
func DefaultWeights() Weights {
	return Weights{Amount: 0.35, Merchant: 0.30, Date: 0.20, Description: 0.15}
}

// Thresholds are the classification policy constants on the 0-100 scale.
type Thresholds struct {
	Similar     float64
	Duplicate   float64
	AutoResolve float64
	WindowDays  int
}

// DefaultThresholds mirror the config defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{Similar: 70, Duplicate: 90, AutoResolve: 95, WindowDays: 7}
}

// Classify maps a score to a conflict type, or "" when the score clears no
// threshold.
func (t Thresholds) Classify(score float64) string {
	switch {
	case score >= t.Duplicate:
		return repository.ConflictDuplicate
	case score >= t.Similar:
		return repository.ConflictSimilar
	default:
		return ""
	}
}

// IncomingRecord is a normalized transaction supplied by the ingestion
// pipeline. ExpenseID is set when the pipeline already persisted the row.
type IncomingRecord struct {
	ExpenseID       *string
	SessionID       *string
	AccountID       string
	Amount          decimal.Decimal
	TransactionDate time.Time
	MerchantName    string
	Description     string
	Currency        string
}

// Scorer compares a stored expense against an incoming record.
type Scorer struct {
	weights Weights
}

func NewScorer(w Weights) Scorer { return Scorer{weights: w} }

// Score returns a similarity in [0,100]. Merchant and description
// components drop out of the weighted mean when blank on both sides, so two
// records identical in every present field still score as duplicates.
func (s Scorer) Score(existing repository.Expense, in IncomingRecord) float64 {
	type component struct {
		weight float64
		score  float64
		skip   bool
	}
	comps := []component{
		{weight: s.weights.Amount, score: amountScore(existing.Amount, in.Amount, existing.Currency, in.Currency)},
		{weight: s.weights.Merchant, score: StringSimilarity(existing.MerchantName, in.MerchantName),
			skip: blankBoth(existing.MerchantName, in.MerchantName)},
		{weight: s.weights.Date, score: dateScore(existing.TransactionDate, in.TransactionDate)},
		{weight: s.weights.Description, score: StringSimilarity(existing.Description, in.Description),
			skip: blankBoth(existing.Description, in.Description)},
	}

	var sum, weight float64
	for _, c := range comps {
		if c.skip {
			continue
		}
		sum += c.weight * c.score
		weight += c.weight
	}
	if weight == 0 {
		return 0
	}
	return clampScore(sum / weight)
}

// StringSimilarity is the normalized edit-distance measure on [0,100]:
// 100 for equal strings (case-insensitive), 0 when either is empty, graded
// by levenshtein distance over the longer length otherwise.
func StringSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	return clampScore(100 * (1 - float64(dist)/float64(maxLen)))
}

// amountScore degrades with the relative difference between the amounts. A
// currency mismatch zeroes the component outright.
func amountScore(a, b decimal.Decimal, curA, curB string) float64 {
	if curA != "" && curB != "" && !strings.EqualFold(curA, curB) {
		return 0
	}
	if a.Equal(b) {
		return 100
	}
	absA, absB := a.Abs(), b.Abs()
	base := absA
	if absB.GreaterThan(base) {
		base = absB
	}
	if base.IsZero() {
		return 0
	}
	ratio, _ := a.Sub(b).Abs().Div(base).Float64()
	return clampScore(100 * (1 - ratio))
}

const dateDecayPerDay = 15.0

// dateScore is 100 on the same calendar day and loses dateDecayPerDay per
// day apart.
func dateScore(a, b time.Time) float64 {
	return clampScore(100 - dateDecayPerDay*float64(daysApart(a, b)))
}

func daysApart(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	d := ad.Sub(bd)
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}

func blankBoth(a, b string) bool {
	return strings.TrimSpace(a) == "" && strings.TrimSpace(b) == ""
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
