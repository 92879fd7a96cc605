package exceptions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vathakkar/ai-voice-concierge/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewRegistry(st), st
}

func TestNormalizeNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+15551234567", "+15551234567"},
		{"15551234567", "+15551234567"},
		{"5551234567", "+15551234567"},
		{"(555) 123-4567", "+15551234567"},
		{"555.123.4567", "+15551234567"},
		{"+442071838750", "+442071838750"},
		{"", ""},
		{"ext", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeNumber(tc.in), "input %q", tc.in)
	}
}

func TestLookupNormalizesKey(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Add(ctx, "(555) 123-4567", "Mom", "family")
	require.NoError(t, err)

	contact := reg.Lookup(ctx, "+15551234567")
	require.NotNil(t, contact)
	assert.Equal(t, "Mom", contact.ContactName)
	assert.Equal(t, "+15551234567", contact.PhoneNumber)
}

func TestLookupMissesInactive(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Add(ctx, "+15551234567", "Mom", "family")
	require.NoError(t, err)
	require.NoError(t, reg.Deactivate(ctx, "+15551234567"))

	assert.Nil(t, reg.Lookup(ctx, "+15551234567"))
}

func TestLookupFailsSafeOnStoreError(t *testing.T) {
	reg, st := newTestRegistry(t)

	// A lookup against an unavailable store must report a miss, steering the
	// call toward screening rather than a silent transfer.
	st.Close()
	assert.Nil(t, reg.Lookup(context.Background(), "+15551234567"))
}

func TestDeactivateIdempotent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Deactivate(ctx, "+15550009999"))
	require.NoError(t, reg.Deactivate(ctx, "+15550009999"))
}
