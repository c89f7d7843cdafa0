package support

import (
	"errors"
	"testing"

	"wallet_aggregator/internal/domain/entity"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	defs := []entity.NetworkDefinition{
		{Identifier: "ethereum", MoralisChain: "eth"},
		{Identifier: "scroll"},
	}
	tbl := NewTable("moralis", defs, func(d entity.NetworkDefinition) bool { return d.MoralisChain != "" },
		entity.CapabilityNativeBalance, entity.CapabilityTokenBalances)

	assert.True(t, tbl.Supports(entity.CapabilityNativeBalance, "ethereum"))
	assert.False(t, tbl.Supports(entity.CapabilityNFTs, "ethereum"), "capability not declared")
	assert.False(t, tbl.Supports(entity.CapabilityNativeBalance, "scroll"), "chain filtered out")
	assert.Equal(t, []entity.Chain{"ethereum"}, tbl.Chains())

	_, err := tbl.Definition(entity.CapabilityNativeBalance, "scroll")
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrUnsupportedChain)
	assert.False(t, entity.IsRetryable(err))
}

func TestTag(t *testing.T) {
	err := error(entity.NewTransientError("alchemy", 503, errors.New("down")))
	Tag(err, entity.CapabilityNFTs, "polygon")

	var pe *entity.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, entity.CapabilityNFTs, pe.Capability)
	assert.Equal(t, entity.Chain("polygon"), pe.Chain)
}

func TestFlexDecoding(t *testing.T) {
	var v struct {
		A FlexInt   `json:"a"`
		B FlexInt   `json:"b"`
		C FlexInt   `json:"c"`
		D FlexFloat `json:"d"`
		E FlexFloat `json:"e"`
	}
	require.NoError(t, jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(
		[]byte(`{"a":18,"b":"6","c":"0x12","d":"1.25","e":null}`), &v))
	assert.EqualValues(t, 18, v.A)
	assert.EqualValues(t, 6, v.B)
	assert.EqualValues(t, 18, v.C)
	require.NotNil(t, v.D.Value)
	assert.Equal(t, 1.25, *v.D.Value)
	assert.Nil(t, v.E.Value)
}
