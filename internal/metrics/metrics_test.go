package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.TrackChanged()
	m.TrackChanged()
	m.RecordingStarted()
	m.RecordingFinished(true)
	m.RecordingFinished(false)
	m.RecordingFinished(false)
	m.WorkerAbandoned(ReasonSuperseded)
	m.SetLive(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TrackChanges))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordingsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordingsFinished.WithLabelValues(OutcomeComplete)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordingsFinished.WithLabelValues(OutcomeIncomplete)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkersAbandoned.WithLabelValues(ReasonSuperseded)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LiveSessions))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.TrackChanged()
		m.RecordingStarted()
		m.RecordingFinished(true)
		m.WorkerAbandoned(ReasonShutdown)
		m.SetLive(1)
	})
}

func TestServer_ServesMetrics(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RecordingStarted()

	srv := NewServer(zap.NewNop(), "127.0.0.1:0", reg)
	require.NoError(t, srv.Start(context.Background()))

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "trackcap_recordings_started_total 1")

	require.NoError(t, srv.Stop(context.Background()))
}

func TestServer_DisabledWithoutAddr(t *testing.T) {
	srv := NewServer(zap.NewNop(), "", prometheus.NewRegistry())
	require.NoError(t, srv.Start(context.Background()))
	assert.Empty(t, srv.Addr())
	require.NoError(t, srv.Stop(context.Background()))
}
