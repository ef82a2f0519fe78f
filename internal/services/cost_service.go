package services

import (
	"math"
	"unicode/utf8"

	"skald/internal/money"
)

// DefaultEmbeddingRatePer1K is the reference embedding price, $0.0001 per
// thousand tokens.
var DefaultEmbeddingRatePer1K = money.MustParseUSD("0.0001")

// CostEstimator converts text into projected tokens and cost. It is used
// for the preflight gate and for pricing measured token counts.
type CostEstimator struct {
	RatePer1K    money.Amount
	BufferFactor float64
}

// NewCostEstimator falls back to the reference rate and a buffer of 1.0
// for non-positive inputs.
func NewCostEstimator(ratePer1K money.Amount, bufferFactor float64) CostEstimator {
	if ratePer1K <= 0 {
		ratePer1K = DefaultEmbeddingRatePer1K
	}
	if bufferFactor < 1 {
		bufferFactor = 1
	}
	return CostEstimator{RatePer1K: ratePer1K, BufferFactor: bufferFactor}
}

// EstimateTokens is ceil(len(text)/4 * bufferFactor), counting characters.
func (e CostEstimator) EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	buffer := e.BufferFactor
	if buffer < 1 {
		buffer = 1
	}
	return int(math.Ceil(float64(n) / 4 * buffer))
}

// CostForTokens prices a token count, rounding partial nano-dollars up.
func (e CostEstimator) CostForTokens(tokens int) money.Amount {
	if tokens <= 0 {
		return 0
	}
	return e.RatePer1K.MulDivCeil(int64(tokens), 1000)
}

func (e CostEstimator) Estimate(text string) (tokens int, cost money.Amount) {
	tokens = e.EstimateTokens(text)
	return tokens, e.CostForTokens(tokens)
}
