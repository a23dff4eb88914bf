package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	impl "github.com/ueckoken/kagi/internal/application/services"
	"github.com/ueckoken/kagi/internal/core/domain/card"
	"github.com/ueckoken/kagi/internal/core/domain/verification"
	"github.com/ueckoken/kagi/test/mocks"
)

func TestCardVerifier_HangingCacheFallsThroughToAuthority(t *testing.T) {
	inner := mocks.StaticVerifier(verified)
	cache := mocks.NewFakeCache()
	cache.Hang = true
	v := impl.NewCardVerifier(inner, cache, impl.VerifierConfig{
		CacheTTL:         time.Hour,
		LookupTimeout:    20 * time.Millisecond,
		AuthorityTimeout: 100 * time.Millisecond,
	}, nil, nil)

	start := time.Now()
	res := v.Verify(context.Background(), card.ParseIDm("345678"))
	require.True(t, res.Granted())
	require.Equal(t, verification.SourceAuthority, res.Source)
	require.Equal(t, 1, inner.Calls())
	require.Less(t, time.Since(start), time.Second)
}

func TestCardVerifier_AuthorityTimeoutStillDenies(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	inner := &mocks.CardVerifierMock{VerifyFn: func(ctx context.Context, id card.IDm) verification.Result {
		<-release
		return verified
	}}
	cache := mocks.NewFakeCache()
	v := impl.NewCardVerifier(inner, cache, impl.VerifierConfig{CacheTTL: time.Hour, AuthorityTimeout: 20 * time.Millisecond}, nil, nil)

	res := v.Verify(context.Background(), card.IDm{0x01})
	require.Equal(t, verification.TransportFault, res.Status)
	require.Equal(t, "timeout", res.Reason)
	require.Zero(t, cache.Sets())
}

func TestCardVerifier_PanickingAuthorityFailsClosed(t *testing.T) {
	inner := &mocks.CardVerifierMock{VerifyFn: func(ctx context.Context, id card.IDm) verification.Result {
		panic("driver bug")
	}}
	cache := mocks.NewFakeCache()
	v := impl.NewCardVerifier(inner, cache, impl.VerifierConfig{CacheTTL: time.Hour, AuthorityTimeout: time.Second}, nil, nil)

	res := v.Verify(context.Background(), card.IDm{0x01})
	require.Equal(t, verification.AuthorityFault, res.Status)
	require.Equal(t, "panic", res.Reason)
	require.False(t, res.Granted())
	require.Zero(t, cache.Sets())
}
