package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapitalize(t *testing.T) {
	res, err := Capitalize().Run("hello world")
	require.NoError(t, err)
	assert.Equal(t, "HELLO WORLD", res.Text)
	assert.Equal(t, "capitalize", res.Metadata["tool"])
}

func TestHashIsDeterministic(t *testing.T) {
	tool := Hash("Base Sepolia")

	res, err := tool.Run("hello")
	require.NoError(t, err)
	// SHA-1("hello")
	assert.Equal(t, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d", res.Text)

	again, err := tool.Run("hello")
	require.NoError(t, err)
	assert.Equal(t, res.Text, again.Text)

	assert.Equal(t, "0.10", tool.Amount())
	assert.Equal(t, "USDC", tool.Currency())
}

func TestFreeTierAccessKeysShape(t *testing.T) {
	res, err := FreeTierAccessKeys().Run("")
	require.NoError(t, err)
	assert.Contains(t, res.Text, "Free Tier Access Keys: ")
	assert.Equal(t, 64, res.Metadata["keyLength"])
	assert.Equal(t, "free", res.Metadata["tier"])
	assert.NotEmpty(t, res.Metadata["validUntil"])
}

func TestPaidTierAccessKeysShape(t *testing.T) {
	tool := PaidTierAccessKeys("Base Sepolia")

	res, err := tool.Run("")
	require.NoError(t, err)
	assert.Contains(t, res.Text, "Premium Tier Access Keys: ")
	assert.Equal(t, "premium", res.Metadata["tier"])
	assert.Equal(t, "0.10", tool.Amount())
}

func TestRegistryLookupIsCaseInsensitive(t *testing.T) {
	r := DefaultRegistry("Base Sepolia")

	tool, ok := r.Lookup("CAPITALIZE")
	require.True(t, ok)
	assert.Equal(t, "capitalize", tool.Name())

	tool, ok = r.Lookup("Hash")
	require.True(t, ok)
	_, isPaid := tool.(*PaidTool)
	assert.True(t, isPaid)

	_, ok = r.Lookup("unknowncommand")
	assert.False(t, ok)
}

func TestRegistryNamesAndDescriptors(t *testing.T) {
	r := DefaultRegistry("Base Sepolia")

	names := r.Names()
	assert.Equal(t, []string{"capitalize", "freetieraccesskeys", "hash", "paidtieraccesskeys"}, names)

	descs := r.Descriptors()
	require.Contains(t, descs, "hash")
	assert.True(t, descs["hash"].PaymentRequired)
	assert.Equal(t, "0.10", descs["hash"].PaymentAmount)
	assert.Equal(t, "USDC", descs["hash"].PaymentCurrency)
	assert.Equal(t, "Base Sepolia", descs["hash"].PaymentNetwork)
	assert.False(t, descs["capitalize"].PaymentRequired)
}
