package bus

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeStatus struct{}

func (fakeStatus) StatusSummary() map[string]interface{} {
	return map[string]interface{}{"active": "G1"}
}

type fakeCommands struct {
	limitCalls    []limitBody
	positionCalls []positionBody
	err           error
}

func (f *fakeCommands) SetStateDeviceLimit(governor, state, device string, low, high float64) error {
	f.limitCalls = append(f.limitCalls, limitBody{Low: low, High: high})
	return f.err
}

func (f *fakeCommands) SetDevicePosition(governor, device, position string, value float64) error {
	f.positionCalls = append(f.positionCalls, positionBody{Value: value})
	return f.err
}

func TestHTTPServer_StatusReturnsProviderSummary(t *testing.T) {
	router := NewHTTPServer(New(nil, nil), fakeStatus{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "G1", body["active"])
}

func TestHTTPServer_LimitEndpointAppliesBody(t *testing.T) {
	cmds := &fakeCommands{}
	router := NewHTTPServer(New(nil, nil), fakeStatus{}, cmds, nil)

	body, _ := json.Marshal(limitBody{Low: -2, High: 2})
	req := httptest.NewRequest(http.MethodPost, "/governors/G1/states/On/devices/motorA/limit", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, cmds.limitCalls, 1)
	require.Equal(t, -2.0, cmds.limitCalls[0].Low)
	require.Equal(t, 2.0, cmds.limitCalls[0].High)
}

func TestHTTPServer_PositionEndpointAppliesBody(t *testing.T) {
	cmds := &fakeCommands{}
	router := NewHTTPServer(New(nil, nil), fakeStatus{}, cmds, nil)

	body, _ := json.Marshal(positionBody{Value: 12.5})
	req := httptest.NewRequest(http.MethodPost, "/governors/G1/devices/motorA/positions/In", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, cmds.positionCalls, 1)
	require.Equal(t, 12.5, cmds.positionCalls[0].Value)
}

func TestHTTPServer_CommandEndpointsUnavailableWithoutCommands(t *testing.T) {
	router := NewHTTPServer(New(nil, nil), fakeStatus{}, nil, nil)

	body, _ := json.Marshal(positionBody{Value: 1})
	req := httptest.NewRequest(http.MethodPost, "/governors/G1/devices/motorA/positions/In", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
