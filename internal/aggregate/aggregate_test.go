package aggregate

import (
	"errors"
	"testing"

	"qihuo/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(id string, sig types.Signal, conf float64) types.ProducerResult {
	return types.ProducerResult{ProducerID: id, Status: types.StatusSuccess, Signal: sig, Confidence: conf}
}

func failed(id string, status types.ProducerStatus, msg string) types.ProducerResult {
	return types.ProducerResult{ProducerID: id, Status: status, Error: msg}
}

func TestFuse_RenormalizesOverContributors(t *testing.T) {
	results := []types.ProducerResult{
		ok("technical", types.SignalBullish, 0.8),
		ok("basis", types.SignalBearish, 0.6),
		failed("news", types.StatusTimeout, "timeout after 1s"),
	}
	weights := map[string]float64{"technical": 0.3, "basis": 0.1, "news": 0.6}
	c, err := Fuse(results, weights, Quorum{MinProducers: 2})
	require.NoError(t, err)

	assert.Equal(t, 2, c.Contributors)
	assert.InDelta(t, 1.0, c.WeightSum(), 1e-12)
	assert.InDelta(t, 0.75, c.Contributions[0].Weight, 1e-12)
	assert.InDelta(t, 0.25, c.Contributions[1].Weight, 1e-12)
	assert.InDelta(t, 0.5, c.Score, 1e-12)
	assert.InDelta(t, 0.75, c.Confidence, 1e-12)
	assert.Equal(t, types.SignalBullish, c.Direction())
	require.Len(t, c.Excluded, 1)
	assert.Equal(t, "news", c.Excluded[0].ProducerID)
	assert.Contains(t, c.Excluded[0].Reason, "timeout")
}

func TestFuse_TieIsNeutral(t *testing.T) {
	results := []types.ProducerResult{
		ok("a", types.SignalBullish, 0.7),
		ok("b", types.SignalBearish, 0.7),
	}
	c, err := Fuse(results, map[string]float64{"a": 0.5, "b": 0.5}, Quorum{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, c.Score)
	assert.Equal(t, types.SignalNeutral, c.Direction())
	assert.InDelta(t, 0.7, c.Confidence, 1e-12)
}

func TestFuse_ZeroWeightExcluded(t *testing.T) {
	results := []types.ProducerResult{
		ok("a", types.SignalBullish, 0.9),
		ok("b", types.SignalBearish, 0.9),
	}
	c, err := Fuse(results, map[string]float64{"a": 1}, Quorum{MinProducers: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Contributors)
	assert.Equal(t, 1.0, c.Score)
	assert.Equal(t, []types.Exclusion{{ProducerID: "b", Reason: "zero weight"}}, c.Excluded)
}

// 六个模块中四个失败，低于半数要求。
func TestFuse_InsufficientQuorum(t *testing.T) {
	results := []types.ProducerResult{
		ok("technical", types.SignalBullish, 0.8),
		ok("basis", types.SignalBullish, 0.6),
		failed("inventory", types.StatusFailed, "boom"),
		failed("positioning", types.StatusTimeout, ""),
		failed("term_structure", types.StatusFailed, "boom"),
		failed("news", types.StatusFailed, "boom"),
	}
	weights := map[string]float64{"technical": 1, "basis": 1, "inventory": 1, "positioning": 1, "term_structure": 1, "news": 1}
	_, err := Fuse(results, weights, Quorum{MinFraction: 0.5})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInsufficientQuorum))
	assert.Contains(t, err.Error(), "2 of 6")

	results[2] = ok("inventory", types.SignalBearish, 0.5)
	_, err = Fuse(results, weights, Quorum{MinFraction: 0.5})
	assert.NoError(t, err)
}

func TestFuse_MinWeight(t *testing.T) {
	results := []types.ProducerResult{
		ok("news", types.SignalBullish, 0.8),
		failed("technical", types.StatusFailed, "x"),
	}
	weights := map[string]float64{"news": 0.1, "technical": 0.9}
	_, err := Fuse(results, weights, Quorum{MinProducers: 1, MinWeight: 0.5})
	assert.ErrorIs(t, err, types.ErrInsufficientQuorum)
}

func TestFuse_NoResults(t *testing.T) {
	_, err := Fuse(nil, nil, Quorum{})
	assert.ErrorIs(t, err, types.ErrInsufficientQuorum)
}

func TestQuorum_Required(t *testing.T) {
	assert.Equal(t, 3, Quorum{MinFraction: 0.5}.Required(6))
	assert.Equal(t, 4, Quorum{MinFraction: 0.5, MinProducers: 4}.Required(6))
	assert.Equal(t, 2, Quorum{MinFraction: 0.5}.Required(3))
}
