package report

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junctionctl/controller/internal/obslog"
)

func TestEnqueueDeliversReportToEndpoint(t *testing.T) {
	var received atomic.Bool
	var gotID string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var payload CycleReport
		require.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
		gotID = payload.CycleReportID
		received.Store(true)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New(srv.URL, obslog.New("report-test"))
	defer r.Stop()

	id := NewCycleReportID()
	r.Enqueue(CycleReport{CycleReportID: id, SubLocationID: 1, Name: "test junction"})

	require.Eventually(t, received.Load, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, id, gotID)
}

func TestEnqueueDoesNotBlockWhenQueueFull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New(srv.URL, obslog.New("report-test"))
	defer r.Stop()

	assert.NotPanics(t, func() {
		for i := 0; i < defaultQueueCapacity*2; i++ {
			r.Enqueue(CycleReport{CycleReportID: NewCycleReportID()})
		}
	})
}

func TestDeliverRetriesOnFailureThenGivesUp(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := New(srv.URL, obslog.New("report-test"))
	r.deliverWithRetry(CycleReport{CycleReportID: "retry-test"})

	assert.Equal(t, int32(defaultMaxRetries+1), attempts.Load())
	r.Stop()
}
