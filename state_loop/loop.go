package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"go.einride.tech/can"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Raudi1/opendbc/actuation"
	"github.com/Raudi1/opendbc/carstate"
	"github.com/Raudi1/opendbc/metrics"
	"github.com/Raudi1/opendbc/platform"
	"github.com/Raudi1/opendbc/recorder"
	"github.com/Raudi1/opendbc/utils"
)

type Loop struct {
	cfg    Config
	log    *utils.Logger
	cmap   *utils.CANMap
	id     platform.Identity
	params actuation.Params

	parsers map[carstate.Bus]*carstate.Parser
	readers map[carstate.Bus]utils.CANReader
	writers map[carstate.Bus]utils.CANWriter // echo targets, empty unless enabled
	norm    *carstate.Normalizer

	rec     *recorder.Recorder // nil disables recording
	sampler *recorder.Sampler

	lastStale  []string
	cycles     uint64
	overrunLog *rate.Limiter

	// lastTorque is the steering torque last put on the powertrain bus, the
	// ramp reference for the next echoed command. 0 while nothing is sent.
	lastTorque int
}

// rxFrame is one received frame tagged with the bus it came from.
type rxFrame struct {
	bus   carstate.Bus
	frame can.Frame
	at    time.Time
}

// NewLoop loads the CAN map, identifies the vehicle and opens every bus.
func NewLoop(ctx context.Context, cfg Config, log *utils.Logger) (*Loop, error) {
	cmap, err := utils.LoadCANMap(cfg.MapPath)
	if err != nil {
		return nil, fmt.Errorf("load can map: %w", err)
	}

	res, id, err := identify(platform.DefaultRegistry(), cfg)
	if err != nil {
		return nil, err
	}
	log.Info("Identified %s via %s (vin fragments %+v)", id.Name, res.Method, res.Fragments)

	ifaces := map[carstate.Bus]string{
		carstate.BusPowertrain: cfg.Interfaces.Powertrain,
		carstate.BusADAS:       cfg.Interfaces.ADAS,
		carstate.BusCamera:     cfg.Interfaces.Camera,
	}
	readers := map[carstate.Bus]utils.CANReader{}
	writers := map[carstate.Bus]utils.CANWriter{}
	closeAll := func() {
		for _, r := range readers {
			_ = r.Close()
		}
		for _, w := range writers {
			_ = w.Close()
		}
	}

	for bus, iface := range ifaces {
		r, err := utils.NewSocketCANReader(ctx, iface)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("bus %s: %w", bus, err)
		}
		readers[bus] = r
	}
	if cfg.EchoCarryover {
		for _, bus := range []carstate.Bus{carstate.BusPowertrain, carstate.BusCamera} {
			w, err := utils.NewSocketCANWriter(ctx, ifaces[bus])
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("bus %s: %w", bus, err)
			}
			writers[bus] = w
		}
	}

	l, err := newLoop(cfg, log, cmap, id, readers, writers)
	if err != nil {
		closeAll()
		return nil, err
	}

	if cfg.Recorder.Path != "" {
		rec, err := recorder.Open(ctx, cfg.Recorder.Path, id.Name)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("recorder: %w", err)
		}
		l.attachRecorder(ctx, rec, res)
	}
	return l, nil
}

func newLoop(cfg Config, log *utils.Logger, cmap *utils.CANMap, id platform.Identity,
	readers map[carstate.Bus]utils.CANReader, writers map[carstate.Bus]utils.CANWriter) (*Loop, error) {
	params, err := actuation.ForPlatform(id.Name)
	if err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	parsers := map[carstate.Bus]*carstate.Parser{}
	for bus, specs := range carstate.Subscriptions() {
		p, err := carstate.NewParser(cmap, bus, specs)
		if err != nil {
			return nil, fmt.Errorf("parser: %w", err)
		}
		p.Logf = log.Logf(utils.WARN)
		parsers[bus] = p
	}

	return &Loop{
		cfg:     cfg,
		log:     log,
		cmap:    cmap,
		id:      id,
		params:  params,
		parsers: parsers,
		readers: readers,
		writers: writers,
		norm:    carstate.NewNormalizer(nil),

		overrunLog: rate.NewLimiter(rate.Every(time.Second), 1),
	}, nil
}

func (l *Loop) attachRecorder(ctx context.Context, rec *recorder.Recorder, res platform.Result) {
	l.rec = rec
	l.sampler = recorder.NewSampler(l.cfg.SampleInterval())
	l.log.Info("Recording to %s session=%s every %v", l.cfg.Recorder.Path, rec.Session(), l.cfg.SampleInterval())
	l.recordWrite("identifications", rec.RecordIdentification(ctx, l.cfg.VIN, res, time.Now()))
}

// identify resolves the platform from exact fingerprint results or the VIN.
// Anything other than a single candidate refuses to start.
func identify(reg *platform.Registry, cfg Config) (platform.Result, platform.Identity, error) {
	res := reg.Identify(cfg.VIN, cfg.ExactFingerprint)
	outcome := metrics.ObserveIdentification(res)
	if res.Err != nil {
		return res, platform.Identity{}, fmt.Errorf("identify: %w", res.Err)
	}
	id, ok := res.Unique()
	if !ok {
		return res, platform.Identity{}, fmt.Errorf("identify: %s match for %q: %v", outcome, cfg.VIN, res.Names())
	}
	return res, id, nil
}

func (l *Loop) Close() {
	for _, r := range l.readers {
		_ = r.Close()
	}
	for _, w := range l.writers {
		_ = w.Close()
	}
	if l.rec != nil {
		_ = l.rec.Close()
	}
}

func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("Starting loop: platform=%s cycle=%v echo=%v long_control=%v steer_max=%d accel=[%.2f, %.2f]",
		l.id.Name, l.cfg.Cycle(), l.cfg.EchoCarryover, l.cfg.SafetyFlags().Has(platform.SafetyLongControl),
		l.params.SteerMax, l.params.AccelMin, l.params.AccelMax)

	g, gCtx := errgroup.WithContext(ctx)
	rx := make(chan rxFrame, 256)

	for bus, r := range l.readers {
		bus, r := bus, r
		g.Go(func() error {
			return l.receiveLoop(gCtx, bus, r, rx)
		})
	}
	if l.cfg.MetricsAddr != "" {
		g.Go(func() error {
			return runMetricsServer(gCtx, l.cfg.MetricsAddr, l.log)
		})
	}
	g.Go(func() error {
		return l.cycleLoop(gCtx, rx)
	})
	// Blocked reads only return once their reader is closed.
	g.Go(func() error {
		<-gCtx.Done()
		for _, r := range l.readers {
			_ = r.Close()
		}
		return nil
	})

	return g.Wait()
}

// receiveLoop forwards frames from one bus until the reader fails or ctx ends.
func (l *Loop) receiveLoop(ctx context.Context, bus carstate.Bus, r utils.CANReader, out chan<- rxFrame) error {
	l.log.Debug("RX loop started bus=%s", bus)
	defer l.log.Debug("RX loop stopped bus=%s", bus)

	for {
		frame, err := r.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.RxErrors.WithLabelValues(bus.String()).Inc()
			return fmt.Errorf("bus %s: %w", bus, err)
		}
		select {
		case out <- rxFrame{bus: bus, frame: frame, at: time.Now()}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Loop) cycleLoop(ctx context.Context, rx <-chan rxFrame) error {
	ticker := time.NewTicker(l.cfg.Cycle())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.log.Warn("Context canceled; stopping loop")
			l.log.Info("Completed. cycles=%d", l.cycles)
			return ctx.Err()

		case f := <-rx:
			l.handleFrame(f)

		case now := <-ticker.C:
			if _, err := l.cycle(ctx, now); err != nil {
				return err
			}
		}
	}
}

func (l *Loop) handleFrame(f rxFrame) {
	label := f.bus.String()
	metrics.RxFramesTotal.WithLabelValues(label).Inc()
	p, ok := l.parsers[f.bus]
	if !ok {
		return
	}
	if p.Feed(f.frame, f.at) {
		metrics.RxFramesAccepted.WithLabelValues(label).Inc()
	}
	if l.log.Enabled(utils.TRACE) {
		l.log.Trace("RX bus=%s id=0x%X len=%d data=% X", label, f.frame.ID, f.frame.Length, f.frame.Data[:f.frame.Length])
	}
}

// cycle runs one normalizer step at now. Only a failed echo transmit is
// returned; recorder failures are counted and logged.
func (l *Loop) cycle(ctx context.Context, now time.Time) (carstate.CarState, error) {
	start := time.Now()
	frames := make(carstate.Frames, len(l.parsers))
	for bus, p := range l.parsers {
		frames[bus] = p.Snapshot(now)
	}
	cs, carry := l.norm.Update(frames)
	stale := carstate.StaleMessages(frames)
	took := time.Since(start)
	metrics.ObserveCycle(l.id.Name, cs, stale, took, l.cfg.Cycle())
	if took > l.cfg.Cycle() && l.overrunLog.Allow() {
		l.log.Warn("Cycle overran: took %v, period %v", took, l.cfg.Cycle())
	}

	l.reportStale(stale)

	if l.rec != nil && l.sampler.Due(now) {
		l.recordWrite("snapshots", l.rec.RecordSnapshot(ctx, now, cs, stale))
	}

	if l.cfg.EchoCarryover {
		if err := l.echo(ctx, carry, cs); err != nil {
			l.log.Critical("Echo failed: %v", err)
			return cs, err
		}
	}

	l.cycles++
	if l.cycles%100 == 0 {
		l.log.Debug("cycle=%d v=%.2f a=%.2f gear=%s steer=%.1f torque=%.2f fault=%s cruise=%v",
			l.cycles, cs.VEgo, cs.AEgo, cs.GearShifter, cs.SteeringAngleDeg, cs.SteeringTorque,
			cs.SteerFault, cs.CruiseState.Enabled)
	}
	return cs, nil
}

func (l *Loop) reportStale(stale []string) {
	if slices.Equal(stale, l.lastStale) {
		return
	}
	if len(stale) == 0 {
		l.log.Info("All subscribed messages fresh")
	} else {
		l.log.Warn("Stale messages: %s", strings.Join(stale, ", "))
	}
	l.lastStale = stale
}

func (l *Loop) recordWrite(table string, err error) {
	if err != nil {
		metrics.RecorderErrors.WithLabelValues(table).Inc()
		l.log.Warn("Recorder %s: %v", table, err)
		return
	}
	metrics.RecorderWrites.WithLabelValues(table).Inc()
}

// echo forwards the held lane keeping command to the powertrain side and the
// held EPAS status to the camera side. A stale carryover is not sent, so a
// silent source stays silent on the other bus. The steering torque request is
// bounded by the platform limits before it is encoded.
func (l *Loop) echo(ctx context.Context, carry carstate.Carryover, cs carstate.CarState) error {
	routes := []struct {
		snap carstate.Snapshot
		name string
		bus  carstate.Bus
	}{
		{carry.LkaHbaCmd, carstate.MsgACMLkaHbaCmd, carstate.BusPowertrain},
		{carry.EPASSystemStatus, carstate.MsgEPASSystemStatus, carstate.BusCamera},
	}
	for _, rt := range routes {
		w, ok := l.writers[rt.bus]
		if !ok || !rt.snap.Valid {
			continue
		}
		if rt.snap.Stale {
			if rt.name == carstate.MsgACMLkaHbaCmd {
				l.lastTorque = 0
			}
			metrics.EchoSuppressed.WithLabelValues(rt.name).Inc()
			continue
		}

		values := rt.snap.Values
		if rt.name == carstate.MsgACMLkaHbaCmd {
			values = l.limitTorque(values, cs.SteeringTorque)
		}
		frame, err := l.cmap.EncodeEinrideFrame(rt.name, values)
		if err != nil {
			return fmt.Errorf("encode %s: %w", rt.name, err)
		}
		if err := w.WriteFrame(ctx, frame); err != nil {
			return fmt.Errorf("transmit %s on %s: %w", rt.name, rt.bus, err)
		}
		metrics.TxFramesTotal.WithLabelValues(rt.name).Inc()
	}
	return nil
}

// limitTorque returns a copy of the lane keeping command with its torque
// request passed through the driver-aware ceiling and ramp limits, and
// advances the ramp reference.
func (l *Loop) limitTorque(values map[string]float64, driverTorque float64) map[string]float64 {
	out := make(map[string]float64, len(values))
	for k, v := range values {
		out[k] = v
	}
	apply := int(math.RoundToEven(values[carstate.SigLkaSteerTorque]))
	limited := actuation.ApplyDriverSteerTorqueLimits(apply, l.lastTorque, driverTorque, l.params)
	if limited != apply {
		l.log.Trace("Steer torque limited %d -> %d (last %d, driver %.2f Nm)", apply, limited, l.lastTorque, driverTorque)
	}
	out[carstate.SigLkaSteerTorque] = float64(limited)
	l.lastTorque = limited
	return out
}

// isShutdown reports errors that mean the loop was asked to stop.
func isShutdown(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}
