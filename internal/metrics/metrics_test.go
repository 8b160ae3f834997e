package metrics

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConfigurationCheck(t *testing.T) {
	assert.NoError(t, NewConfiguration().Check())

	c := NewConfiguration()
	c.ReportingFreqSec = 0
	assert.ErrorIs(t, c.Check(), ErrInvalidReportingFreq)

	_, err := New(zap.NewNop(), c)
	assert.ErrorIs(t, err, ErrInvalidReportingFreq)
}

func TestPrometheusDisabled(t *testing.T) {
	m, err := New(zap.NewNop(), NewConfiguration())
	require.NoError(t, err)
	defer m.Stop()

	assert.Empty(t, m.Addr())
	assert.NotNil(t, m.Scope())
}

func TestHandlerExportsCounters(t *testing.T) {
	c := NewConfiguration()
	c.ReportingFreqSec = 1
	m, err := New(zap.NewNop(), c)
	require.NoError(t, err)
	defer m.Stop()

	m.Scope().SubScope("reconcile").Counter("passes").Inc(1)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	assert.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		return err == nil && resp.StatusCode == http.StatusOK &&
			strings.Contains(string(body), "ranger_reconcile_passes 1")
	}, 5*time.Second, 100*time.Millisecond)
}

func TestPrometheusListener(t *testing.T) {
	c := NewConfiguration()
	c.PrometheusPort = freePort(t)
	m, err := New(zap.NewNop(), c)
	require.NoError(t, err)
	defer m.Stop()

	require.NotEmpty(t, m.Addr())
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/metrics", c.PrometheusPort))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func freePort(t *testing.T) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
