package dummy

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/nergy-se/venstar-bridge/pkg/venstar"
	"github.com/sirupsen/logrus"
)

// Device simulates the local API of a Venstar thermostat.
type Device struct {
	info     venstar.InfoResponse
	controls []url.Values
	reject   string
	status   int
	mux      *http.ServeMux
	sync.Mutex
}

// New returns a device in fahrenheit, heat mode, 70F ambient with setpoints 68F/75F.
func New() *Device {
	d := &Device{
		info: venstar.InfoResponse{
			Name:      "dummy",
			Mode:      1,
			TempUnits: 0,
			SpaceTemp: 70,
			HeatTemp:  68,
			CoolTemp:  75,
		},
		mux: http.NewServeMux(),
	}
	d.mux.HandleFunc("/query/info", d.handleInfo)
	d.mux.HandleFunc("/control", d.handleControl)
	d.mux.HandleFunc("/dummy/set", d.handleSet)
	d.mux.HandleFunc("/dummy/reject", d.handleReject)
	return d
}

func (d *Device) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	d.mux.ServeHTTP(w, req)
}

// Start serves the device on a loopback port until ctx is done and returns its address.
func (d *Device) Start(ctx context.Context) (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	srv := &http.Server{Handler: d}
	go func() {
		err := srv.Serve(l)
		if err != nil && err != http.ErrServerClosed {
			logrus.Error(err)
		}
	}()
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	logrus.Infof("dummy: venstar device listening on %s", l.Addr())
	return l.Addr().String(), nil
}

// SetInfo replaces the state the device reports.
func (d *Device) SetInfo(info venstar.InfoResponse) {
	d.Lock()
	d.info = info
	d.Unlock()
}

func (d *Device) Info() venstar.InfoResponse {
	d.Lock()
	defer d.Unlock()
	return d.info
}

// Reject makes every following control request fail with reason. Empty reason accepts again.
func (d *Device) Reject(reason string) {
	d.Lock()
	d.reject = reason
	d.Unlock()
}

// FailWith makes every request answer with the given http status. 0 restores normal operation.
func (d *Device) FailWith(status int) {
	d.Lock()
	d.status = status
	d.Unlock()
}

// Controls returns the query of every control request received.
func (d *Device) Controls() []url.Values {
	d.Lock()
	defer d.Unlock()
	return append([]url.Values(nil), d.controls...)
}

func (d *Device) LastControl() url.Values {
	d.Lock()
	defer d.Unlock()
	if len(d.controls) == 0 {
		return nil
	}
	return d.controls[len(d.controls)-1]
}

func (d *Device) failed(w http.ResponseWriter) bool {
	d.Lock()
	status := d.status
	d.Unlock()
	if status == 0 {
		return false
	}
	w.WriteHeader(status)
	return true
}

func (d *Device) handleInfo(w http.ResponseWriter, req *http.Request) {
	if d.failed(w) {
		return
	}
	writeJSON(w, d.Info())
}

func (d *Device) handleControl(w http.ResponseWriter, req *http.Request) {
	if d.failed(w) {
		return
	}
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := req.URL.Query()

	d.Lock()
	defer d.Unlock()
	d.controls = append(d.controls, q)

	if d.reject != "" {
		writeJSON(w, map[string]interface{}{"error": true, "reason": d.reject})
		return
	}

	next := d.info
	err := applyControl(&next, q)
	if err != nil {
		writeJSON(w, map[string]interface{}{"error": true, "reason": err.Error()})
		return
	}
	d.info = next
	writeJSON(w, map[string]interface{}{"success": true})
}

func applyControl(info *venstar.InfoResponse, q url.Values) error {
	var err error
	if v := q.Get("mode"); v != "" {
		info.Mode, err = strconv.Atoi(v)
		if err != nil || info.Mode < 0 || info.Mode > 3 {
			return fmt.Errorf("invalid mode %q", v)
		}
	}
	if v := q.Get("fan"); v != "" {
		info.Fan, err = strconv.Atoi(v)
		if err != nil || info.Fan < 0 || info.Fan > 1 {
			return fmt.Errorf("invalid fan %q", v)
		}
		info.FanState = info.Fan
	}
	if v := q.Get("heattemp"); v != "" {
		info.HeatTemp, err = strconv.ParseFloat(v, 64)
		if err != nil || !finite(info.HeatTemp) {
			return fmt.Errorf("invalid heattemp %q", v)
		}
	}
	if v := q.Get("cooltemp"); v != "" {
		info.CoolTemp, err = strconv.ParseFloat(v, 64)
		if err != nil || !finite(info.CoolTemp) {
			return fmt.Errorf("invalid cooltemp %q", v)
		}
	}
	if info.Mode == 3 && info.HeatTemp > info.CoolTemp {
		return fmt.Errorf("heattemp must not be above cooltemp in auto")
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// handleSet tweaks the simulated state, for example /dummy/set?spacetemp=72.
func (d *Device) handleSet(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	d.Lock()
	defer d.Unlock()

	next := d.info
	if v := q.Get("spacetemp"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || !finite(f) {
			http.Error(w, fmt.Sprintf("invalid spacetemp %q", v), http.StatusBadRequest)
			return
		}
		next.SpaceTemp = f
	}
	if v := q.Get("tempunits"); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil || (i != 0 && i != 1) {
			http.Error(w, fmt.Sprintf("invalid tempunits %q", v), http.StatusBadRequest)
			return
		}
		next.TempUnits = i
	}
	err := applyControl(&next, q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	d.info = next
	logrus.Infof("dummy: state set to %+v", d.info)
	writeJSON(w, d.info)
}

func (d *Device) handleReject(w http.ResponseWriter, req *http.Request) {
	reason := req.URL.Query().Get("reason")
	d.Reject(reason)
	fmt.Fprintf(w, "reject reason set to %q\n", reason)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		logrus.Error(err)
	}
}
