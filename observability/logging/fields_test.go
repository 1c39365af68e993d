package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReserveAttrUsesReserveIDKey(t *testing.T) {
	var id [32]byte
	id[0] = 0xAB
	attr := ReserveAttr(id)
	require.Equal(t, "reserve_id", attr.Key)
}

func TestOperationAttrUsesOperationKey(t *testing.T) {
	attr := OperationAttr("borrow")
	require.Equal(t, "operation", attr.Key)
	require.Equal(t, "borrow", attr.Value.String())
}

func TestRedactionAllowlistIncludesDomainKeys(t *testing.T) {
	require.True(t, IsAllowlisted("reserve_id"))
	require.True(t, IsAllowlisted("obligation_id"))
	require.False(t, IsAllowlisted("owner_secret"))
}
