package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	ytapi "google.golang.org/api/youtube/v3"

	"github.com/researchaccelerator-hub/viewcast/model"
	"github.com/researchaccelerator-hub/viewcast/quota"
)

func newTestClient(t *testing.T, specs []quota.CredentialSpec) (*YouTubeClient, *quota.Ledger) {
	t.Helper()
	ledger, err := quota.NewLedger(specs, nil)
	require.NoError(t, err)

	c, err := NewYouTubeClient(ledger)
	require.NoError(t, err)
	c.newService = func(ctx context.Context, apiKey string) (*ytapi.Service, error) {
		return &ytapi.Service{}, nil
	}
	return c, ledger
}

func quotaError() error {
	return &googleapi.Error{
		Code:   403,
		Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}},
	}
}

func TestCallCommitsOnSuccess(t *testing.T) {
	c, ledger := newTestClient(t, []quota.CredentialSpec{
		{Name: "key-a", Key: "AAA", DailyQuota: 10},
	})

	calls := 0
	err := c.call(context.Background(), quota.CallVideosList, func(*ytapi.Service) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 9, ledger.Remaining()["key-a"])
}

func TestCallRotatesOnRemoteQuotaRejection(t *testing.T) {
	c, ledger := newTestClient(t, []quota.CredentialSpec{
		{Name: "key-a", Key: "AAA", DailyQuota: 10},
		{Name: "key-b", Key: "BBB", DailyQuota: 10},
	})

	var usedKeys []string
	err := c.call(context.Background(), quota.CallVideosList, func(*ytapi.Service) error {
		if len(usedKeys) == 0 {
			usedKeys = append(usedKeys, "AAA")
			return quotaError()
		}
		usedKeys = append(usedKeys, "BBB")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, usedKeys)

	// The rejected credential was drained locally.
	assert.Equal(t, 0, ledger.Remaining()["key-a"])
	assert.Equal(t, 9, ledger.Remaining()["key-b"])
}

func TestCallQuotaRejectionRetriesOnlyOnce(t *testing.T) {
	c, _ := newTestClient(t, []quota.CredentialSpec{
		{Name: "key-a", Key: "AAA", DailyQuota: 10},
		{Name: "key-b", Key: "BBB", DailyQuota: 10},
	})

	calls := 0
	err := c.call(context.Background(), quota.CallVideosList, func(*ytapi.Service) error {
		calls++
		return quotaError()
	})
	assert.ErrorIs(t, err, model.ErrQuotaExhausted)
	assert.Equal(t, 2, calls)
}

func TestCallDoesNotRetryNotFound(t *testing.T) {
	c, _ := newTestClient(t, []quota.CredentialSpec{
		{Name: "key-a", Key: "AAA", DailyQuota: 10},
	})

	calls := 0
	err := c.call(context.Background(), quota.CallVideosList, func(*ytapi.Service) error {
		calls++
		return &googleapi.Error{Code: 404}
	})
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, 1, calls)
}

func TestCallRetriesTransientWithBoundedAttempts(t *testing.T) {
	orig := baseBackoff
	baseBackoff = time.Millisecond
	defer func() { baseBackoff = orig }()

	c, ledger := newTestClient(t, []quota.CredentialSpec{
		{Name: "key-a", Key: "AAA", DailyQuota: 10},
	})

	calls := 0
	err := c.call(context.Background(), quota.CallVideosList, func(*ytapi.Service) error {
		calls++
		return &googleapi.Error{Code: 503}
	})
	assert.ErrorIs(t, err, model.ErrTransientFailure)
	assert.Equal(t, maxTransientAttempts, calls)

	// Transient failures release their reservations.
	assert.Equal(t, 10, ledger.Remaining()["key-a"])
}

func TestCallTransientThenSuccess(t *testing.T) {
	orig := baseBackoff
	baseBackoff = time.Millisecond
	defer func() { baseBackoff = orig }()

	c, ledger := newTestClient(t, []quota.CredentialSpec{
		{Name: "key-a", Key: "AAA", DailyQuota: 10},
	})

	calls := 0
	err := c.call(context.Background(), quota.CallVideosList, func(*ytapi.Service) error {
		calls++
		if calls < 3 {
			return &googleapi.Error{Code: 500}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 9, ledger.Remaining()["key-a"])
}

func TestCallDeniedWhenLedgerExhausted(t *testing.T) {
	c, ledger := newTestClient(t, []quota.CredentialSpec{
		{Name: "key-a", Key: "AAA", DailyQuota: 100},
	})

	permit, err := ledger.Reserve(quota.CallSearchList)
	require.NoError(t, err)
	ledger.Commit(permit)

	err = c.call(context.Background(), quota.CallVideosList, func(*ytapi.Service) error {
		t.Fatal("network call must not run without a reservation")
		return nil
	})
	assert.ErrorIs(t, err, model.ErrQuotaExhausted)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, classOK, classify(nil))
	assert.Equal(t, classQuota, classify(quotaError()))
	assert.Equal(t, classNotFound, classify(&googleapi.Error{Code: 404}))
	assert.Equal(t, classTransient, classify(&googleapi.Error{Code: 500}))
	assert.Equal(t, classTransient, classify(&googleapi.Error{Code: 429}))
	assert.Equal(t, classPermanent, classify(&googleapi.Error{Code: 400}))
	assert.Equal(t, classTransient, classify(&net.DNSError{IsTimeout: true}))
	assert.Equal(t, classTransient, classify(context.DeadlineExceeded))
	assert.Equal(t, classPermanent, classify(errors.New("boom")))
}

func TestBackoffDelayDoubles(t *testing.T) {
	orig := baseBackoff
	baseBackoff = 100 * time.Millisecond
	defer func() { baseBackoff = orig }()

	assert.Equal(t, 100*time.Millisecond, backoffDelay(1))
	assert.Equal(t, 200*time.Millisecond, backoffDelay(2))
	assert.Equal(t, 400*time.Millisecond, backoffDelay(3))
}
