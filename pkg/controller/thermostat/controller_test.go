package thermostat

import (
	"context"
	"errors"
	"math"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nergy-se/venstar-bridge/pkg/alarm"
	"github.com/nergy-se/venstar-bridge/pkg/api/v1/types"
	"github.com/nergy-se/venstar-bridge/pkg/controller"
	"github.com/nergy-se/venstar-bridge/pkg/convert"
	"github.com/nergy-se/venstar-bridge/pkg/state"
	"github.com/nergy-se/venstar-bridge/pkg/venstar"
	"github.com/nergy-se/venstar-bridge/pkg/venstar/dummy"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	info       venstar.InfoResponse
	infoErr    error
	controlErr error
	controls   []venstar.ControlRequest
	infoCalls  int
	onInfo     func(ctx context.Context) error
	sync.Mutex
}

func (f *fakeDevice) Info(ctx context.Context) (*venstar.InfoResponse, error) {
	f.Lock()
	f.infoCalls++
	onInfo := f.onInfo
	f.Unlock()
	if onInfo != nil {
		if err := onInfo(ctx); err != nil {
			return nil, err
		}
	}
	f.Lock()
	defer f.Unlock()
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	i := f.info
	return &i, nil
}

func (f *fakeDevice) Control(ctx context.Context, cr venstar.ControlRequest) (*venstar.ControlResponse, error) {
	f.Lock()
	defer f.Unlock()
	f.controls = append(f.controls, cr)
	if f.controlErr != nil {
		return nil, f.controlErr
	}
	return &venstar.ControlResponse{Success: true}, nil
}

func (f *fakeDevice) lastControl(t *testing.T) venstar.ControlRequest {
	t.Helper()
	f.Lock()
	defer f.Unlock()
	require.NotEmpty(t, f.controls)
	return f.controls[len(f.controls)-1]
}

func (f *fakeDevice) calls() int {
	f.Lock()
	defer f.Unlock()
	return f.infoCalls
}

type recordingSink struct {
	values  map[controller.Characteristic]float64
	updates int
	sync.Mutex
}

func newRecordingSink() *recordingSink {
	return &recordingSink{values: make(map[controller.Characteristic]float64)}
}

func (r *recordingSink) UpdateValue(c controller.Characteristic, v float64) {
	r.Lock()
	r.values[c] = v
	r.updates++
	r.Unlock()
}

func (r *recordingSink) value(c controller.Characteristic) (float64, bool) {
	r.Lock()
	defer r.Unlock()
	v, ok := r.values[c]
	return v, ok
}

func (r *recordingSink) count() int {
	r.Lock()
	defer r.Unlock()
	return r.updates
}

func WaitFor(t *testing.T, timeout time.Duration, msg string, ok func() bool) {
	end := time.Now().Add(timeout)
	for {
		if end.Before(time.Now()) {
			t.Errorf("timeout waiting for: %s", msg)
			return
		}
		time.Sleep(10 * time.Millisecond)
		if ok() {
			return
		}
	}
}

// fahrenheitDevice is in heat mode with 70F ambient, 64.4F (18C) heat and 75F cool.
func fahrenheitDevice() *fakeDevice {
	return &fakeDevice{info: venstar.InfoResponse{
		Mode:      1,
		TempUnits: 0,
		SpaceTemp: 70,
		HeatTemp:  64.4,
		CoolTemp:  75,
		Fan:       1,
		FanState:  1,
	}}
}

func celsiusDevice() *fakeDevice {
	return &fakeDevice{info: venstar.InfoResponse{
		Mode:      2,
		TempUnits: 1,
		SpaceTemp: 21.5,
		HeatTemp:  27,
		CoolTemp:  8,
	}}
}

func TestFetchFahrenheit(t *testing.T) {
	sink := newRecordingSink()
	ts := New(fahrenheitDevice(), sink, time.Millisecond)
	defer ts.Close()

	s, err := ts.Fetch(context.Background(), nil)
	require.NoError(t, err)

	assert.True(t, s.UsesFahrenheit)
	assert.Equal(t, types.ModeHeat, s.Mode)
	assert.Equal(t, 21.11, s.CurrentTemperature)
	assert.Equal(t, 18.0, s.HeatSetpoint)
	assert.Equal(t, 23.89, s.CoolSetpoint)
	assert.Equal(t, 18.0, s.TargetTemperature)
	assert.Equal(t, 23.89, s.CoolThreshold)
	assert.Equal(t, 18.0, s.HeatThreshold)
	assert.Equal(t, types.FanModeOn, s.FanRequested)
	assert.Equal(t, types.FanStateRunning, s.FanRunning)
	assert.False(t, s.FetchedAt.IsZero())

	v, _ := sink.value(controller.TemperatureDisplayUnits)
	assert.Equal(t, 1.0, v)
	v, _ = sink.value(controller.CurrentHeatingCoolingState)
	assert.Equal(t, 1.0, v)
	v, _ = sink.value(controller.TargetHeatingCoolingState)
	assert.Equal(t, 1.0, v)
	v, _ = sink.value(controller.TargetTemperature)
	assert.Equal(t, 18.0, v)
	v, _ = sink.value(controller.CurrentTemperature)
	assert.Equal(t, 21.11, v)
	v, _ = sink.value(controller.FanActive)
	assert.Equal(t, 1.0, v)
	assert.Equal(t, len(controller.Characteristics), sink.count())

	assert.Equal(t, s.CoolSetpoint, ts.Cache().Get().CoolSetpoint)
}

func TestFetchCelsiusClampsThresholds(t *testing.T) {
	sink := newRecordingSink()
	ts := New(celsiusDevice(), sink, time.Millisecond)
	defer ts.Close()

	s, err := ts.Fetch(context.Background(), nil)
	require.NoError(t, err)

	assert.False(t, s.UsesFahrenheit)
	assert.Equal(t, 21.5, s.CurrentTemperature)
	assert.Equal(t, 27.0, s.HeatSetpoint)
	assert.Equal(t, 8.0, s.CoolSetpoint)
	assert.Equal(t, 8.0, s.TargetTemperature)
	assert.Equal(t, 10.0, s.CoolThreshold)
	assert.Equal(t, 25.0, s.HeatThreshold)

	v, _ := sink.value(controller.TemperatureDisplayUnits)
	assert.Equal(t, 0.0, v)
	v, _ = sink.value(controller.CoolingThresholdTemperature)
	assert.Equal(t, 10.0, v)
	v, _ = sink.value(controller.HeatingThresholdTemperature)
	assert.Equal(t, 25.0, v)
}

func TestFetchOffAndAutoTargets(t *testing.T) {
	device := celsiusDevice()
	device.info.Mode = 0
	ts := New(device, nil, time.Millisecond)
	defer ts.Close()

	s, err := ts.Fetch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 21.5, s.TargetTemperature)

	device.info.Mode = 3
	device.info.HeatTemp = 10
	device.info.CoolTemp = 20
	s, err = ts.Fetch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 15.0, s.TargetTemperature)
}

func TestFetchOverridesAppliedBeforeConversion(t *testing.T) {
	ts := New(fahrenheitDevice(), nil, time.Millisecond)
	defer ts.Close()

	s, err := ts.Fetch(context.Background(), &state.Overrides{
		Mode:         state.Pointer(types.ModeCool),
		CoolSetpoint: state.Pointer(71.6),
		HeatSetpoint: state.Pointer(0.0),
	})
	require.NoError(t, err)
	assert.Equal(t, types.ModeCool, s.Mode)
	assert.Equal(t, 22.0, s.CoolSetpoint)
	assert.Equal(t, 22.0, s.TargetTemperature)
	assert.Equal(t, -17.78, s.HeatSetpoint)
	assert.Equal(t, 0.0, s.HeatThreshold)
}

func TestFetchErrors(t *testing.T) {
	device := fahrenheitDevice()
	device.info.Mode = 4
	sink := newRecordingSink()
	ts := New(device, sink, time.Millisecond)
	defer ts.Close()

	_, err := ts.Fetch(context.Background(), nil)
	assert.ErrorIs(t, err, types.ErrInvalidMode)
	assert.Equal(t, 0, sink.count())
	assert.Len(t, ts.Alarms().List(), 1)

	_, err = ts.Fetch(context.Background(), &state.Overrides{Mode: state.Pointer(types.Mode(7))})
	assert.ErrorIs(t, err, convert.ErrUnsupportedMode)

	device.info.Mode = 1
	device.info.Fan = 2
	_, err = ts.Fetch(context.Background(), nil)
	assert.ErrorIs(t, err, types.ErrInvalidFan)

	device.info.Fan = 0
	device.infoErr = &venstar.TransportError{Op: "GET", URL: "http://x/query/info", Err: errors.New("connection refused")}
	_, err = ts.Fetch(context.Background(), nil)
	assert.ErrorIs(t, err, venstar.ErrTransport)
	assert.Equal(t, 0, sink.count())
	assert.Equal(t, alarm.KindTransport, ts.Alarms().List()[1].Kind)

	device.infoErr = nil
	_, err = ts.Fetch(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, ts.Alarms().List())
}

func TestApplyMergePrecedence(t *testing.T) {
	var tests = []struct {
		name         string
		device       *fakeDevice
		change       controller.ChangeRequest
		expectedHeat float64
		expectedCool float64
	}{
		{
			name:         "cool setpoint fahrenheit device keeps heat",
			device:       fahrenheitDevice(),
			change:       controller.ChangeRequest{CoolSetpoint: state.Pointer(22.0)},
			expectedHeat: 64.4,
			expectedCool: 71.6,
		},
		{
			name:         "cool setpoint celsius device is not converted",
			device:       celsiusDevice(),
			change:       controller.ChangeRequest{CoolSetpoint: state.Pointer(22.0)},
			expectedHeat: 27,
			expectedCool: 22,
		},
		{
			name:         "heat setpoint zero is present",
			device:       celsiusDevice(),
			change:       controller.ChangeRequest{HeatSetpoint: state.Pointer(0.0)},
			expectedHeat: 0,
			expectedCool: 8,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ts := New(tt.device, nil, time.Hour)
			defer ts.Close()

			err := ts.Apply(context.Background(), tt.change)
			require.NoError(t, err)

			cr := tt.device.lastControl(t)
			assert.InDelta(t, tt.expectedHeat, cr.HeatTemp, 0.001)
			assert.InDelta(t, tt.expectedCool, cr.CoolTemp, 0.001)
			assert.Equal(t, tt.device.info.Mode, cr.Mode)
			assert.Equal(t, tt.device.info.Fan, cr.Fan)
		})
	}
}

func TestApplyTargetRedistribution(t *testing.T) {
	var tests = []struct {
		name         string
		mode         int
		change       controller.ChangeRequest
		expectedMode int
		expectedHeat float64
		expectedCool float64
	}{
		{
			name:         "heat mode sets heat",
			mode:         1,
			change:       controller.ChangeRequest{TargetTemperature: state.Pointer(21.0)},
			expectedMode: 1,
			expectedHeat: 69.8,
			expectedCool: 75,
		},
		{
			name:         "cool mode sets cool",
			mode:         2,
			change:       controller.ChangeRequest{TargetTemperature: state.Pointer(21.0)},
			expectedMode: 2,
			expectedHeat: 64.4,
			expectedCool: 69.8,
		},
		{
			name:         "auto mode sets both",
			mode:         3,
			change:       controller.ChangeRequest{TargetTemperature: state.Pointer(21.0)},
			expectedMode: 3,
			expectedHeat: 69.8,
			expectedCool: 69.8,
		},
		{
			name:         "off mode sets both",
			mode:         0,
			change:       controller.ChangeRequest{TargetTemperature: state.Pointer(21.0)},
			expectedMode: 0,
			expectedHeat: 69.8,
			expectedCool: 69.8,
		},
		{
			name: "mode in same change does not steer the target",
			mode: 2,
			change: controller.ChangeRequest{
				Mode:              state.Pointer(types.ModeHeat),
				TargetTemperature: state.Pointer(21.0),
			},
			expectedMode: 1,
			expectedHeat: 64.4,
			expectedCool: 69.8,
		},
		{
			name: "target wins over explicit setpoint",
			mode: 1,
			change: controller.ChangeRequest{
				HeatSetpoint:      state.Pointer(15.0),
				TargetTemperature: state.Pointer(21.0),
			},
			expectedMode: 1,
			expectedHeat: 69.8,
			expectedCool: 75,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			device := fahrenheitDevice()
			device.info.Mode = tt.mode
			ts := New(device, nil, time.Hour)
			defer ts.Close()

			err := ts.Apply(context.Background(), tt.change)
			require.NoError(t, err)

			cr := device.lastControl(t)
			assert.Equal(t, tt.expectedMode, cr.Mode)
			assert.InDelta(t, tt.expectedHeat, cr.HeatTemp, 0.001)
			assert.InDelta(t, tt.expectedCool, cr.CoolTemp, 0.001)
		})
	}
}

func TestApplyZeroValuesArePresent(t *testing.T) {
	device := fahrenheitDevice()
	ts := New(device, nil, time.Hour)
	defer ts.Close()

	err := ts.Apply(context.Background(), controller.ChangeRequest{
		Mode:         state.Pointer(types.ModeOff),
		FanRequested: state.Pointer(types.FanModeAuto),
	})
	require.NoError(t, err)

	cr := device.lastControl(t)
	assert.Equal(t, 0, cr.Mode)
	assert.Equal(t, 0, cr.Fan)
}

func TestApplyInvalidChange(t *testing.T) {
	device := fahrenheitDevice()
	ts := New(device, nil, time.Hour)
	defer ts.Close()

	err := ts.Apply(context.Background(), controller.ChangeRequest{Mode: state.Pointer(types.Mode(4))})
	assert.ErrorIs(t, err, types.ErrInvalidMode)
	err = ts.Apply(context.Background(), controller.ChangeRequest{FanRequested: state.Pointer(types.FanMode(2))})
	assert.ErrorIs(t, err, types.ErrInvalidFan)
	err = ts.Apply(context.Background(), controller.ChangeRequest{TargetTemperature: state.Pointer(math.NaN())})
	assert.ErrorIs(t, err, controller.ErrInvalidTemperature)
	err = ts.Set(context.Background(), controller.CoolingThresholdTemperature, math.Inf(1))
	assert.ErrorIs(t, err, controller.ErrInvalidTemperature)
	assert.Equal(t, 0, device.calls())
	assert.Empty(t, device.controls)
}

func TestApplyWithBaseSkipsFetch(t *testing.T) {
	device := fahrenheitDevice()
	ts := New(device, nil, time.Hour)
	defer ts.Close()

	base := &state.Snapshot{
		Mode:           types.ModeCool,
		UsesFahrenheit: false,
		HeatSetpoint:   19,
		CoolSetpoint:   24,
	}
	err := ts.Apply(context.Background(), controller.ChangeRequest{TargetTemperature: state.Pointer(23.0), Base: base})
	require.NoError(t, err)
	assert.Equal(t, 0, device.calls())

	cr := device.lastControl(t)
	assert.Equal(t, 2, cr.Mode)
	assert.Equal(t, 19.0, cr.HeatTemp)
	assert.Equal(t, 23.0, cr.CoolTemp)
}

func TestApplySettleRefreshUsesWrittenValues(t *testing.T) {
	device := fahrenheitDevice()
	sink := newRecordingSink()
	ts := New(device, sink, 10*time.Millisecond)
	defer ts.Close()

	// the fake device never applies the control so the readback is stale.
	err := ts.Apply(context.Background(), controller.ChangeRequest{TargetTemperature: state.Pointer(21.0)})
	require.NoError(t, err)

	WaitFor(t, time.Second, "settle refresh", func() bool {
		return device.calls() == 2
	})
	WaitFor(t, time.Second, "target temperature update", func() bool {
		v, _ := sink.value(controller.TargetTemperature)
		return v == 21.0
	})
	v, _ := sink.value(controller.HeatingThresholdTemperature)
	assert.Equal(t, 21.0, v)
	assert.Equal(t, 21.0, ts.Cache().Get().HeatSetpoint)
}

func TestApplyRejected(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	device := fahrenheitDevice()
	device.controlErr = &venstar.DeviceRejectedError{Reason: "setpoint out of range"}
	sink := newRecordingSink()
	ts := New(device, sink, time.Millisecond)
	defer ts.Close()

	base, err := Normalize(&device.info, nil)
	require.NoError(t, err)

	err = ts.Apply(context.Background(), controller.ChangeRequest{HeatSetpoint: state.Pointer(40.0), Base: base})
	assert.ErrorIs(t, err, venstar.ErrDeviceRejected)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, sink.count())
	assert.Equal(t, 0, device.calls())

	found := false
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && assert.ObjectsAreEqual(e.Data["heattemp"], 104.0) {
			assert.Contains(t, e.Message, "setpoint out of range")
			found = true
		}
	}
	assert.True(t, found, "expected rejection to be logged")

	list := ts.Alarms().List()
	require.Len(t, list, 1)
	assert.Equal(t, alarm.KindRejected, list[0].Kind)

	device.controlErr = nil
	err = ts.Apply(context.Background(), controller.ChangeRequest{HeatSetpoint: state.Pointer(20.0), Base: base})
	assert.NoError(t, err)
	assert.Empty(t, ts.Alarms().List())
}

func TestCloseCancelsPendingRefresh(t *testing.T) {
	device := fahrenheitDevice()
	ts := New(device, nil, time.Hour)

	base, err := Normalize(&device.info, nil)
	require.NoError(t, err)
	err = ts.Apply(context.Background(), controller.ChangeRequest{CoolSetpoint: state.Pointer(22.0), Base: base})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		ts.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not cancel pending refresh")
	}
	assert.Equal(t, 0, device.calls())

	// writes after close do not schedule anything
	err = ts.Apply(context.Background(), controller.ChangeRequest{CoolSetpoint: state.Pointer(22.0), Base: base})
	assert.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, device.calls())
}

func TestCloseDuringRefreshRaisesNoAlarm(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	device := fahrenheitDevice()
	entered := make(chan struct{})
	device.onInfo = func(ctx context.Context) error {
		close(entered)
		<-ctx.Done()
		return &venstar.TransportError{Op: "GET", URL: "http://x/query/info", Err: ctx.Err()}
	}
	ts := New(device, nil, time.Millisecond)

	base, err := Normalize(&device.info, nil)
	require.NoError(t, err)
	err = ts.Apply(context.Background(), controller.ChangeRequest{CoolSetpoint: state.Pointer(22.0), Base: base})
	require.NoError(t, err)

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("settle refresh never started")
	}
	require.NoError(t, ts.Close())

	assert.Empty(t, ts.Alarms().List())
	for _, e := range hook.AllEntries() {
		assert.NotEqual(t, logrus.ErrorLevel, e.Level, e.Message)
	}
}

// Writes are not serialized: two writes that fetch their base before either is
// written both merge against the same stale base and the last one wins.
func TestConcurrentWritesMergeAgainstStaleBase(t *testing.T) {
	device := fahrenheitDevice()
	var barrier sync.WaitGroup
	barrier.Add(2)
	device.onInfo = func(ctx context.Context) error {
		barrier.Done()
		barrier.Wait()
		return nil
	}
	ts := New(device, nil, time.Hour)
	defer ts.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, ts.Apply(context.Background(), controller.ChangeRequest{CoolSetpoint: state.Pointer(22.0)}))
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, ts.Apply(context.Background(), controller.ChangeRequest{HeatSetpoint: state.Pointer(20.0)}))
	}()
	wg.Wait()

	device.Lock()
	defer device.Unlock()
	require.Len(t, device.controls, 2)
	for _, cr := range device.controls {
		bothApplied := cr.CoolTemp == 71.6 && cr.HeatTemp == 68.0
		assert.False(t, bothApplied, "write %+v merged a change it never saw", cr)
	}
}

func TestGetSet(t *testing.T) {
	device := fahrenheitDevice()
	ts := New(device, nil, time.Hour)
	defer ts.Close()

	v, err := ts.Get(context.Background(), controller.TemperatureDisplayUnits)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = ts.Get(context.Background(), controller.HeatingThresholdTemperature)
	require.NoError(t, err)
	assert.Equal(t, 18.0, v)

	err = ts.Set(context.Background(), controller.CurrentTemperature, 20)
	assert.ErrorIs(t, err, controller.ErrReadOnly)

	err = ts.Set(context.Background(), controller.TargetHeatingCoolingState, 4)
	assert.ErrorIs(t, err, types.ErrInvalidMode)

	err = ts.Set(context.Background(), controller.TargetHeatingCoolingState, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, device.lastControl(t).Mode)

	err = ts.Set(context.Background(), controller.FanActive, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, device.lastControl(t).Fan)

	err = ts.Set(context.Background(), controller.TargetTemperature, 21)
	require.NoError(t, err)
	assert.InDelta(t, 69.8, device.lastControl(t).HeatTemp, 0.001)
}

func TestUnitPolarityEndToEnd(t *testing.T) {
	device := dummy.New()
	server := httptest.NewServer(device)
	defer server.Close()

	sink := newRecordingSink()
	ts := New(venstar.NewClient(server.URL, time.Second), sink, 10*time.Millisecond)
	defer ts.Close()

	s, err := ts.Fetch(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, s.UsesFahrenheit)
	assert.Equal(t, types.DisplayUnitsFahrenheit, s.DisplayUnits())
	v, _ := sink.value(controller.TemperatureDisplayUnits)
	assert.Equal(t, 1.0, v)

	err = ts.Set(context.Background(), controller.TargetTemperature, 21)
	require.NoError(t, err)
	assert.Equal(t, "69.8", device.LastControl().Get("heattemp"))
	assert.Equal(t, "75", device.LastControl().Get("cooltemp"))

	WaitFor(t, time.Second, "settle refresh", func() bool {
		v, _ := sink.value(controller.TargetTemperature)
		return v == 21.0
	})

	info := device.Info()
	info.TempUnits = 1
	device.SetInfo(info)
	s, err = ts.Fetch(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, s.UsesFahrenheit)
	v, _ = sink.value(controller.TemperatureDisplayUnits)
	assert.Equal(t, 0.0, v)
}
