package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/esoto/expense-tracker-sub008/internal/database/repository"
)

func expense(amount, date, merchant, desc string) repository.Expense {
	day, _ := time.Parse(time.DateOnly, date)
	return repository.Expense{
		Amount:          decimal.RequireFromString(amount),
		TransactionDate: day,
		MerchantName:    merchant,
		Description:     desc,
		Currency:        "USD",
	}
}

func TestScoreIdenticalRecords(t *testing.T) {
	t.Parallel()
	s := NewScorer(DefaultWeights())

	e := expense("42.50", "2026-03-10", "Blue Bottle Coffee", "morning latte")
	in := record("acc-1", "42.50", "2026-03-10", "Blue Bottle Coffee", "morning latte")

	score := s.Score(e, in)
	require.GreaterOrEqual(t, score, 95.0)
	require.Equal(t, repository.ConflictDuplicate, DefaultThresholds().Classify(score))
}

func TestScoreHalvedAmountLeavesDuplicateBand(t *testing.T) {
	t.Parallel()
	s := NewScorer(DefaultWeights())

	e := expense("100", "2026-03-10", "Blue Bottle Coffee", "morning latte")
	in := record("acc-1", "50", "2026-03-10", "Blue Bottle Coffee", "morning latte")

	score := s.Score(e, in)
	require.Less(t, score, 90.0)
	require.GreaterOrEqual(t, score, 70.0, "still similar, just not a duplicate")
}

func TestScoreCurrencyMismatchZeroesAmount(t *testing.T) {
	t.Parallel()
	s := NewScorer(DefaultWeights())

	e := expense("42.50", "2026-03-10", "Blue Bottle Coffee", "morning latte")
	in := record("acc-1", "42.50", "2026-03-10", "Blue Bottle Coffee", "morning latte")
	in.Currency = "EUR"

	require.Less(t, s.Score(e, in), 70.0)
}

func TestScoreDateDecayIsMonotone(t *testing.T) {
	t.Parallel()
	s := NewScorer(DefaultWeights())
	e := expense("42.50", "2026-03-10", "Blue Bottle Coffee", "morning latte")

	var prev float64 = 101
	for _, date := range []string{"2026-03-10", "2026-03-11", "2026-03-13", "2026-03-16"} {
		score := s.Score(e, record("acc-1", "42.50", date, "Blue Bottle Coffee", "morning latte"))
		require.Less(t, score, prev, "score should drop as dates drift apart (%s)", date)
		prev = score
	}
}

func TestScoreBlankTextFieldsDoNotSinkIdenticalRecords(t *testing.T) {
	t.Parallel()
	s := NewScorer(DefaultWeights())

	e := expense("42.50", "2026-03-10", "Blue Bottle Coffee", "")
	in := record("acc-1", "42.50", "2026-03-10", "Blue Bottle Coffee", "")

	require.GreaterOrEqual(t, s.Score(e, in), 95.0)
}

func TestStringSimilarity(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"a", "Blue Bottle", "DAN MURPHY'S/580 MELBOURN"} {
		require.Equal(t, 100.0, StringSimilarity(s, s))
	}
	require.Equal(t, 0.0, StringSimilarity("", "anything"))
	require.Equal(t, 0.0, StringSimilarity("anything", ""))
	require.Equal(t, 0.0, StringSimilarity("", ""))

	// case-insensitive
	require.Equal(t, 100.0, StringSimilarity("Blue Bottle", "blue bottle"))

	// graded: a shared prefix beats a disjoint string
	shared := StringSimilarity("starbucks", "starbucks coffee")
	disjoint := StringSimilarity("starbucks", "dan murphys")
	require.Greater(t, shared, disjoint)
	require.Greater(t, shared, 0.0)
	require.Less(t, shared, 100.0)
}

func TestClassifyBands(t *testing.T) {
	t.Parallel()
	th := DefaultThresholds()

	require.Equal(t, repository.ConflictDuplicate, th.Classify(95))
	require.Equal(t, repository.ConflictDuplicate, th.Classify(90))
	require.Equal(t, repository.ConflictSimilar, th.Classify(89.9))
	require.Equal(t, repository.ConflictSimilar, th.Classify(70))
	require.Equal(t, "", th.Classify(69.9))
	require.Equal(t, "", th.Classify(0))
}
