package thermostat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nergy-se/venstar-bridge/pkg/alarm"
	"github.com/nergy-se/venstar-bridge/pkg/api/v1/types"
	"github.com/nergy-se/venstar-bridge/pkg/controller"
	"github.com/nergy-se/venstar-bridge/pkg/convert"
	"github.com/nergy-se/venstar-bridge/pkg/state"
	"github.com/nergy-se/venstar-bridge/pkg/venstar"
	"github.com/sirupsen/logrus"
)

// DefaultSettleDelay is how long the device gets to apply a command before it is read back.
const DefaultSettleDelay = 100 * time.Millisecond

// Device is the part of the venstar client the thermostat needs.
type Device interface {
	Info(ctx context.Context) (*venstar.InfoResponse, error)
	Control(ctx context.Context, cr venstar.ControlRequest) (*venstar.ControlResponse, error)
}

type Thermostat struct {
	device      Device
	sink        controller.Sink
	settleDelay time.Duration

	cache  *state.Cache
	alarms *alarm.ActiveAlarms

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func New(device Device, sink controller.Sink, settleDelay time.Duration) *Thermostat {
	if settleDelay == 0 {
		settleDelay = DefaultSettleDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Thermostat{
		device:      device,
		sink:        sink,
		settleDelay: settleDelay,
		cache:       &state.Cache{},
		alarms:      &alarm.ActiveAlarms{},
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (ts *Thermostat) Cache() *state.Cache {
	return ts.cache
}

func (ts *Thermostat) Alarms() *alarm.ActiveAlarms {
	return ts.alarms
}

func (ts *Thermostat) Fetch(ctx context.Context, overrides *state.Overrides) (*state.Snapshot, error) {
	info, err := ts.device.Info(ctx)
	if err != nil {
		// a cancelled caller says nothing about the device
		if ctx.Err() == nil {
			ts.alarms.Set(alarm.KindTransport, err.Error())
		}
		return nil, err
	}

	s, err := Normalize(info, overrides)
	if err != nil {
		ts.alarms.Set(alarm.KindInvalid, err.Error())
		return nil, err
	}
	s.FetchedAt = time.Now()
	ts.alarms.Clear(alarm.KindTransport, alarm.KindInvalid)

	logrus.WithFields(logrus.Fields(s.Map())).Debug("thermostat: get")

	ts.publish(*s)
	ts.cache.Set(*s)
	return s, nil
}

// Normalize converts a device reading into a celsius snapshot. Overrides are applied before conversion.
func Normalize(info *venstar.InfoResponse, overrides *state.Overrides) (*state.Snapshot, error) {
	if overrides == nil {
		overrides = &state.Overrides{}
	}

	var err error
	var mode types.Mode
	if overrides.Mode != nil {
		mode = *overrides.Mode
	} else {
		mode, err = types.ParseMode(info.Mode)
		if err != nil {
			return nil, err
		}
	}

	var fan types.FanMode
	if overrides.FanRequested != nil {
		fan = *overrides.FanRequested
	} else {
		fan, err = types.ParseFanMode(info.Fan)
		if err != nil {
			return nil, err
		}
	}

	fanRunning, err := types.ParseFanState(info.FanState)
	if err != nil {
		return nil, err
	}

	heatNative := info.HeatTemp
	if overrides.HeatSetpoint != nil {
		heatNative = *overrides.HeatSetpoint
	}
	coolNative := info.CoolTemp
	if overrides.CoolSetpoint != nil {
		coolNative = *overrides.CoolSetpoint
	}

	useF := info.UsesFahrenheit()
	current := convert.ToCelsius(useF, info.SpaceTemp)
	heat := convert.ToCelsius(useF, heatNative)
	cool := convert.ToCelsius(useF, coolNative)

	target, err := convert.DeriveTarget(mode, heat, cool, current)
	if err != nil {
		return nil, err
	}

	return &state.Snapshot{
		Mode:               mode,
		UsesFahrenheit:     useF,
		CurrentTemperature: current,
		HeatSetpoint:       heat,
		CoolSetpoint:       cool,
		TargetTemperature:  target,
		FanRequested:       fan,
		FanRunning:         fanRunning,
		CoolThreshold:      convert.CoolThreshold(cool),
		HeatThreshold:      convert.HeatThreshold(heat),
	}, nil
}

func (ts *Thermostat) publish(s state.Snapshot) {
	if ts.sink == nil {
		return
	}
	for _, c := range controller.Characteristics {
		v, err := c.Value(s)
		if err != nil {
			logrus.Error(err)
			continue
		}
		ts.sink.UpdateValue(c, v)
	}
}

func (ts *Thermostat) Apply(ctx context.Context, change controller.ChangeRequest) error {
	err := change.Validate()
	if err != nil {
		return err
	}

	base := change.Base
	if base == nil {
		base, err = ts.Fetch(ctx, nil)
		if err != nil {
			return fmt.Errorf("error fetching current state: %w", err)
		}
	}

	cr, applied := compose(base, change)

	logrus.WithFields(logrus.Fields{
		"mode":     cr.Mode,
		"fan":      cr.Fan,
		"heattemp": cr.HeatTemp,
		"cooltemp": cr.CoolTemp,
	}).Debug("thermostat: set")

	_, err = ts.device.Control(ctx, cr)
	if err != nil {
		if errors.Is(err, venstar.ErrDeviceRejected) {
			logrus.WithFields(logrus.Fields{
				"mode":     cr.Mode,
				"fan":      cr.Fan,
				"heattemp": cr.HeatTemp,
				"cooltemp": cr.CoolTemp,
			}).Errorf("thermostat: %s", err)
			ts.alarms.Set(alarm.KindRejected, err.Error())
			return err
		}
		if ctx.Err() == nil {
			ts.alarms.Set(alarm.KindTransport, err.Error())
		}
		return err
	}
	ts.alarms.Clear(alarm.KindRejected)

	ts.scheduleRefresh(applied)
	return nil
}

// compose merges change onto base and returns the device command together with the
// overrides describing what was written.
func compose(base *state.Snapshot, change controller.ChangeRequest) (venstar.ControlRequest, *state.Overrides) {
	mode := base.Mode
	if change.Mode != nil {
		mode = *change.Mode
	}
	fan := base.FanRequested
	if change.FanRequested != nil {
		fan = *change.FanRequested
	}
	heat := base.HeatSetpoint
	if change.HeatSetpoint != nil {
		heat = *change.HeatSetpoint
	}
	cool := base.CoolSetpoint
	if change.CoolSetpoint != nil {
		cool = *change.CoolSetpoint
	}

	// the target is distributed by the mode the device is in, not a mode in the same change.
	if change.TargetTemperature != nil {
		target := *change.TargetTemperature
		switch base.Mode {
		case types.ModeHeat:
			heat = target
		case types.ModeCool:
			cool = target
		default:
			heat = target
			cool = target
		}
	}

	cr := venstar.ControlRequest{
		Mode:     int(mode),
		Fan:      int(fan),
		HeatTemp: convert.FromCelsius(base.UsesFahrenheit, heat),
		CoolTemp: convert.FromCelsius(base.UsesFahrenheit, cool),
	}
	return cr, &state.Overrides{
		Mode:         &mode,
		FanRequested: &fan,
		HeatSetpoint: &cr.HeatTemp,
		CoolSetpoint: &cr.CoolTemp,
	}
}

// scheduleRefresh reads the device back after the settle delay, reporting the written values
// instead of a possibly stale echo. Close cancels pending refreshes.
func (ts *Thermostat) scheduleRefresh(overrides *state.Overrides) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.closed {
		return
	}

	ts.wg.Add(1)
	go func() {
		defer ts.wg.Done()
		timer := time.NewTimer(ts.settleDelay)
		defer timer.Stop()
		select {
		case <-ts.ctx.Done():
			logrus.Debug("thermostat: settle refresh cancelled")
			return
		case <-timer.C:
		}

		_, err := ts.Fetch(ts.ctx, overrides)
		if err != nil && ts.ctx.Err() == nil {
			logrus.Errorf("thermostat: settle refresh failed: %s", err)
		}
	}()
}

func (ts *Thermostat) Get(ctx context.Context, c controller.Characteristic) (float64, error) {
	s, err := ts.Fetch(ctx, nil)
	if err != nil {
		return 0, err
	}
	return c.Value(*s)
}

func (ts *Thermostat) Set(ctx context.Context, c controller.Characteristic, value float64) error {
	change, err := controller.ChangeFor(c, value)
	if err != nil {
		return err
	}
	return ts.Apply(ctx, change)
}

// Close cancels pending settle refreshes and waits for running ones.
func (ts *Thermostat) Close() error {
	ts.mu.Lock()
	ts.closed = true
	ts.mu.Unlock()

	ts.cancel()
	ts.wg.Wait()
	return nil
}
