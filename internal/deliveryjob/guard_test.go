package deliveryjob_test

import (
	"testing"

	"github.com/hookfreight/hookfreight/internal/deliveryjob"
	"github.com/stretchr/testify/require"
)

func TestIsSelfForwardDetectsOwnHookTokenURL(t *testing.T) {
	self, err := deliveryjob.IsSelfForward(
		"https://hooks.example.com/abcdef0123456789abcdef01",
		"https://hooks.example.com",
	)
	require.NoError(t, err)
	require.True(t, self)
}

func TestIsSelfForwardAllowsDifferentHost(t *testing.T) {
	self, err := deliveryjob.IsSelfForward(
		"https://other.example.com/abcdef0123456789abcdef01",
		"https://hooks.example.com",
	)
	require.NoError(t, err)
	require.False(t, self)
}

func TestIsSelfForwardAllowsNonHookTokenShapedPath(t *testing.T) {
	self, err := deliveryjob.IsSelfForward(
		"https://hooks.example.com/webhooks/receive",
		"https://hooks.example.com",
	)
	require.NoError(t, err)
	require.False(t, self)
}

func TestIsSelfForwardRespectsExplicitPort(t *testing.T) {
	self, err := deliveryjob.IsSelfForward(
		"https://hooks.example.com:8443/abcdef0123456789abcdef01",
		"https://hooks.example.com",
	)
	require.NoError(t, err)
	require.False(t, self, "explicit port 8443 differs from default https port 443")
}

func TestIsSelfForwardInfersDefaultPortFromScheme(t *testing.T) {
	self, err := deliveryjob.IsSelfForward(
		"http://hooks.example.com:80/abcdef0123456789abcdef01",
		"http://hooks.example.com",
	)
	require.NoError(t, err)
	require.True(t, self)
}
