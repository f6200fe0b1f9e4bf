package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, cyclesTotal)
	require.NotNil(t, dispatchTotal)
	require.NotNil(t, ledgerSize)
}

func TestObserveHelpers(t *testing.T) {
	Init()
	before := testutil.ToFloat64(cyclesTotal.WithLabelValues("completed"))
	ObserveCycle("completed")
	assert.Equal(t, before+1, testutil.ToFloat64(cyclesTotal.WithLabelValues("completed")))

	fetchedBefore := testutil.ToFloat64(recordsFetchedTotal)
	ObserveRecords(25, 1)
	assert.Equal(t, fetchedBefore+25, testutil.ToFloat64(recordsFetchedTotal))

	ObserveDispatch("ok")
	ObserveRecycle("scheduled")
	ObserveFetchDuration(150 * time.Millisecond)

	SetLedgerSize(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(ledgerSize))
	SetSupervisorState(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(supervisorState))
}

func TestPusherNilWhenUnconfigured(t *testing.T) {
	p := NewPusher("", "job")
	assert.Nil(t, p)
	assert.NoError(t, p.Push(context.Background()))
}

func TestPusherPushesRegistry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Contains(t, r.URL.Path, "/metrics/job/kapwatch")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ObserveCycle("completed")
	require.NoError(t, NewPusher(srv.URL, "").Push(context.Background()))
	assert.Equal(t, int32(1), hits.Load())
}

func TestPusherReportsGatewayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewPusher(srv.URL, "kapwatch").Push(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push metrics")
}
