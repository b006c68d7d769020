package dummy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nergy-se/venstar-bridge/pkg/venstar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(d *Device, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	d.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestSetIsAtomic(t *testing.T) {
	var tests = []struct {
		name  string
		query string
	}{
		{
			name:  "invalid fan after valid mode",
			query: "spacetemp=72&mode=2&heattemp=60&fan=5",
		},
		{
			name:  "invalid tempunits after valid spacetemp",
			query: "spacetemp=72&tempunits=4",
		},
		{
			name:  "NaN cooltemp",
			query: "mode=2&cooltemp=NaN",
		},
		{
			name:  "infinite spacetemp",
			query: "spacetemp=Inf",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			d := New()
			before := d.Info()

			w := serve(d, http.MethodGet, "/dummy/set?"+tt.query)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, before, d.Info())
		})
	}
}

func TestSet(t *testing.T) {
	d := New()
	w := serve(d, http.MethodGet, "/dummy/set?spacetemp=72&tempunits=1&mode=2")
	require.Equal(t, http.StatusOK, w.Code)

	info := d.Info()
	assert.Equal(t, 72.0, info.SpaceTemp)
	assert.Equal(t, 1, info.TempUnits)
	assert.Equal(t, 2, info.Mode)
}

func TestControlRejectsNonFinite(t *testing.T) {
	d := New()
	w := serve(d, http.MethodPost, "/control?mode=1&fan=0&heattemp=NaN&cooltemp=75")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"error":true`)
	assert.Equal(t, 68.0, d.Info().HeatTemp)

	w = serve(d, http.MethodGet, "/query/info")
	require.Equal(t, http.StatusOK, w.Code)
	info := venstar.InfoResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, 68.0, info.HeatTemp)
}
