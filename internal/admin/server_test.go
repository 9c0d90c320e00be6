package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"inscription-contest/internal/logger"
	"inscription-contest/internal/monitor"
)

type fakeEngine struct {
	expired   []uint
	expireErr error
	resets    []string
}

func (f *fakeEngine) ForceExpire(id uint, reason string) error {
	if f.expireErr != nil {
		return f.expireErr
	}
	f.expired = append(f.expired, id)
	return nil
}

func (f *fakeEngine) Reset(reason string) error {
	f.resets = append(f.resets, reason)
	return nil
}

type fakeMonitor struct {
	triggers int
	status   *monitor.Status
}

func (f *fakeMonitor) TriggerManually() { f.triggers++ }

func (f *fakeMonitor) Status() (*monitor.Status, error) {
	return f.status, nil
}

func newTestServer(eng *fakeEngine, mon *fakeMonitor, token string) *httptest.Server {
	s := NewServer(eng, mon, token, logger.New(false))
	return httptest.NewServer(s.handler())
}

func doJSON(t *testing.T, method, url, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, &fakeMonitor{}, "secret")
	defer srv.Close()

	resp := doJSON(t, http.MethodGet, srv.URL+"/admin/status", "", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var payload errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, http.StatusUnauthorized, payload.ErrorCode)

	resp2 := doJSON(t, http.MethodGet, srv.URL+"/admin/status", "wrong", nil)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestEliminate(t *testing.T) {
	eng := &fakeEngine{}
	srv := newTestServer(eng, &fakeMonitor{}, "secret")
	defer srv.Close()

	resp := doJSON(t, http.MethodPost, srv.URL+"/admin/eliminate", "secret",
		map[string]interface{}{"proposalId": 7, "reason": "spam"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []uint{7}, eng.expired)
}

func TestEliminateValidation(t *testing.T) {
	eng := &fakeEngine{}
	srv := newTestServer(eng, &fakeMonitor{}, "secret")
	defer srv.Close()

	// Missing reason: rejected synchronously, no state mutation.
	resp := doJSON(t, http.MethodPost, srv.URL+"/admin/eliminate", "secret",
		map[string]interface{}{"proposalId": 7})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Empty(t, eng.expired)
}

func TestEliminateUnknownProposal(t *testing.T) {
	eng := &fakeEngine{expireErr: errors.New("unknown proposal 99")}
	srv := newTestServer(eng, &fakeMonitor{}, "secret")
	defer srv.Close()

	resp := doJSON(t, http.MethodPost, srv.URL+"/admin/eliminate", "secret",
		map[string]interface{}{"proposalId": 99, "reason": "spam"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var payload errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Contains(t, payload.ErrorMessage, "unknown proposal")
}

func TestReset(t *testing.T) {
	eng := &fakeEngine{}
	srv := newTestServer(eng, &fakeMonitor{}, "secret")
	defer srv.Close()

	resp := doJSON(t, http.MethodPost, srv.URL+"/admin/reset", "secret",
		map[string]string{"reason": "new round"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{"new round"}, eng.resets)
}

func TestTrigger(t *testing.T) {
	mon := &fakeMonitor{}
	srv := newTestServer(&fakeEngine{}, mon, "secret")
	defer srv.Close()

	resp := doJSON(t, http.MethodPost, srv.URL+"/admin/trigger", "secret", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, mon.triggers)
}

func TestStatus(t *testing.T) {
	mon := &fakeMonitor{status: &monitor.Status{
		Running:            true,
		ObservedHeight:     840002,
		LastProcessedBlock: 840000,
		BlocksBehind:       2,
	}}
	srv := newTestServer(&fakeEngine{}, mon, "secret")
	defer srv.Close()

	resp := doJSON(t, http.MethodGet, srv.URL+"/admin/status", "secret", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))

	var st monitor.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	require.True(t, st.Running)
	require.Equal(t, int64(2), st.BlocksBehind)
}
