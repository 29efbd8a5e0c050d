// Package system is the root aggregate: it owns every control package
// (Sampler, Buck, Temp, Param, Charge, Power, Bus, Led, hwwatchdog) plus
// the daylight diagnostic and the synthetic ADC backend that stands in
// for real panel/battery hardware, and distributes the fast/slow ticks
// the reference firmware's cooperative main loop drives them with.
package system

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/devskill-org/mppt-charger-fw/buck"
	"github.com/devskill-org/mppt-charger-fw/bus"
	"github.com/devskill-org/mppt-charger-fw/charge"
	"github.com/devskill-org/mppt-charger-fw/config"
	"github.com/devskill-org/mppt-charger-fw/daylight"
	"github.com/devskill-org/mppt-charger-fw/hwwatchdog"
	"github.com/devskill-org/mppt-charger-fw/led"
	"github.com/devskill-org/mppt-charger-fw/param"
	"github.com/devskill-org/mppt-charger-fw/power"
	"github.com/devskill-org/mppt-charger-fw/sampler"
	"github.com/devskill-org/mppt-charger-fw/temp"
)

// chargeMeasurements adapts *sampler.Sampler's locking accessor to
// charge.MeasurementSource's single-value-return shape.
type chargeMeasurements struct{ s *sampler.Sampler }

func (m chargeMeasurements) GetValue(ch int) int {
	v, _ := m.s.GetValue(sampler.Channel(ch))
	return v
}

// Sampler channel indices, duplicated as plain ints for Bus register
// mirroring and the charge measurement adapter above; matches
// sampler.Channel's ordinals.
const (
	chVs = int(sampler.Vs)
	chIs = int(sampler.Is)
	chVb = int(sampler.Vb)
	chIb = int(sampler.Ib)
	chTi = int(sampler.Ti)
	chTe = int(sampler.Te)
)

// System owns every control component and the background goroutines that
// drive their ticks.
type System struct {
	cfg    *config.Config
	logger *log.Logger

	startTime time.Time
	simOrigin time.Time

	params   *param.Params
	bus      *bus.Bus
	buckCtrl *buck.Buck
	sampler  *sampler.Sampler
	tempComp *temp.Compensator
	chargeFS *charge.Charge
	powerFS  *power.Power
	ledInd   *led.Led
	wd       *hwwatchdog.Watchdog
	sun      *daylight.Daylight
	backend  *SyntheticBackend

	busServer *bus.Server
	health    *HealthServer
	web       *WebServer

	mu         sync.Mutex
	lastStatus Snapshot
}

// New constructs System and every component it owns, wiring each to the
// others exactly as the reference firmware's module init order does:
// Power before Bus (Bus needs Power as its WatchdogControl, Power needs
// Bus as its StatusPublisher — broken with a post-construction setter,
// see bus.Bus.SetWatchdog / power.Power.SetStatusPublisher).
func New(cfg *config.Config, logger *log.Logger, wdCause hwwatchdog.ResetCause) *System {
	if logger == nil {
		logger = log.New(os.Stdout, "[SYSTEM] ", log.LstdFlags)
	}

	battType := param.LeadAcid
	chemistry := temp.LeadAcid
	lifePO4 := false
	if cfg.BatteryType == "lifepo4" {
		battType = param.LiFePO4
		chemistry = temp.LiFePO4
		lifePO4 = true
	}

	params := param.New(battType)

	sun := daylight.New(cfg.Latitude, cfg.Longitude)
	now := time.Now()
	irradiance := irradianceAt(sun, now)
	vsAtBoot := int(float64(cfg.SimPanelOpenCircuitMv) * irradiance)
	isNightAtBoot := vsAtBoot < charge.VNightThresh+charge.VDeltaChange

	// Power first, with its status sink wired in once Bus exists.
	powerFS := power.New(cfg.SimBatteryMv, params.PwroffMv(), cfg.EnableAtNight, isNightAtBoot, nil)

	busInst := bus.New(cfg.BoardID, cfg.FirmwareMajor, cfg.FirmwareMinor, params, powerFS)
	powerFS.SetStatusPublisher(busInst)

	wd := hwwatchdog.New(wdCause)
	busInst.SeedResetDetect(wd.CausedReset())

	buckCtrl := buck.New(busInst)
	backend := NewSyntheticBackend(cfg, buckCtrl)
	backend.SetIrradiance(irradiance)
	samplerInst := sampler.New(backend, buckCtrl)

	tempComp := temp.New(chemistry)
	chargeFS := charge.New(lifePO4, vsAtBoot, params.FloatMv(), buckCtrl)

	ledInd := led.New(led.Inputs{
		LowBattDisabled: powerFS.State() == power.OffLowBatt,
		BadBattery:      powerFS.BadBatt(),
		IdleOrNight:     chargeFS.NotCharging(),
	})

	s := &System{
		cfg:       cfg,
		logger:    logger,
		startTime: now,
		simOrigin: now,
		params:    params,
		bus:       busInst,
		buckCtrl:  buckCtrl,
		sampler:   samplerInst,
		tempComp:  tempComp,
		chargeFS:  chargeFS,
		powerFS:   powerFS,
		ledInd:    ledInd,
		wd:        wd,
		sun:       sun,
		backend:   backend,
	}

	s.health = NewHealthServer(s, cfg.HealthPort)
	s.web = NewWebServer(s, cfg.WebPort)

	return s
}

// irradianceAt is a coarse day/night model: full sun at solar noon,
// scaled by altitude between sunrise and sunset, zero outside them.
func irradianceAt(sun *daylight.Daylight, t time.Time) float64 {
	snap := sun.At(t)
	if !snap.IsDaytime || snap.AltitudeDeg <= 0 {
		return 0
	}
	f := snap.AltitudeDeg / 60 // ~60 deg altitude treated as full sun
	if f > 1 {
		f = 1
	}
	return f
}

// virtualNow applies the configured time-acceleration factor to the
// daylight irradiance driver only; every other timer in System runs on
// real wall-clock ticks.
func (s *System) virtualNow() time.Time {
	if s.cfg.SimTimeAcceleration <= 1 {
		return time.Now()
	}
	elapsed := time.Since(s.simOrigin)
	return s.simOrigin.Add(time.Duration(float64(elapsed) * s.cfg.SimTimeAcceleration))
}

// Run starts every background goroutine and blocks until ctx is
// cancelled, then shuts them down.
func (s *System) Run(ctx context.Context) error {
	var busListener net.Listener
	if s.cfg.BusPort > 0 {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.BusPort))
		if err != nil {
			return fmt.Errorf("listen bus port: %w", err)
		}
		busListener = ln
		s.busServer = bus.NewServer(s.bus, ln, s.logger)
		go func() {
			if err := s.busServer.Serve(); err != nil {
				s.logger.Printf("bus server stopped: %v", err)
			}
		}()
		s.logger.Printf("register bus listening on :%d", s.cfg.BusPort)
	}

	if err := s.health.Start(); err != nil {
		s.logger.Printf("health server failed to start: %v", err)
	}
	if err := s.web.Start(); err != nil {
		s.logger.Printf("web server failed to start: %v", err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	runTicker := func(name string, interval time.Duration, fn func()) {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-ctx.Done():
				s.logger.Printf("%s stopped: %v", name, ctx.Err())
				return
			case <-stop:
				return
			}
		}
	}

	wg.Add(4)
	go runTicker("sampler", s.cfg.SamplerInterval, s.sampler.Step)
	go runTicker("fast-tick", s.cfg.FastTickInterval, s.fastTick)
	go runTicker("slow-tick", s.cfg.SlowTickInterval, s.slowTick)
	go runTicker("power-tick", time.Second, s.powerTick)

	<-ctx.Done()
	close(stop)
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.health.Stop(shutdownCtx)
	s.web.Stop(shutdownCtx)
	if busListener != nil {
		busListener.Close()
	}

	return nil
}

// fastTick runs every FastTickInterval (10ms nominal): kick the hardware
// watchdog and re-evaluate the LED display.
func (s *System) fastTick() {
	s.wd.Kick()

	s.ledInd.Update(led.Inputs{
		LowBattDisabled:  s.powerFS.State() == power.OffLowBatt,
		BadBattery:       s.powerFS.BadBatt(),
		ExtSensorMissing: s.lastExtMissing(),
		TempLimited:      s.chargeFS.IsTempLimited(),
		IdleOrNight:      s.chargeFS.NotCharging(),
		SolarIsMa:        s.chargeFS.IsMa(),
	})
}

func (s *System) lastExtMissing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStatus.ExtMissing
}

// powerTick runs once per second, exactly as the reference firmware's
// POWER_Update contract requires: every timeout in power.go (pre-warn,
// low-power, watchdog countdown, WdOff dwell) is specified in seconds and
// decremented once per call, so Power must be driven on its own 1Hz
// cadence rather than Charge's 250ms slow tick.
func (s *System) powerTick() {
	vbMv := s.chargeFS.VbMv()
	s.powerFS.Update(vbMv, s.params.PwroffMv(), s.params.PwronMv(), s.cfg.EnableAtNight, s.chargeFS.IsNight(), s.chargeFS.NotCharging())
	s.backend.SetLoadEnabled(s.powerFS.PwrEn())
}

// slowTick runs every SlowTickInterval (250ms nominal): the full MPPT and
// charge state machine pass, temperature compensation, register mirror
// publish, and the simulated environment's slow dynamics. Power's own
// state machine runs on its own 1Hz tick (see powerTick); slowTick only
// reads Power's current outputs to mirror them onto the register bus.
func (s *System) slowTick() {
	vNow := s.virtualNow()
	irradiance := irradianceAt(s.sun, vNow)
	s.backend.SetIrradiance(irradiance)

	src := chargeMeasurements{s: s.sampler}
	s.chargeFS.MpptUpdate(src)

	tiC10, _ := s.sampler.GetValue(sampler.Ti)
	teC10, _ := s.sampler.GetValue(sampler.Te)
	tempResult := s.tempComp.Update(tiC10, teC10, s.params.BulkMv(), s.params.FloatMv())

	s.chargeFS.StateUpdate(tempResult.CompBulkMv, tempResult.CompFloatMv, tempResult.EffectiveC10, s.cfg.EnableAtNight)

	vbMv := s.chargeFS.VbMv()
	s.backend.IntegrateBattery(s.chargeFS.IcMa(), s.cfg.SlowTickInterval)

	status := bus.Status{
		BadBatt:    vbMv < charge.VBadBattery,
		ExtMissing: tempResult.ExtMissing,
		WdRunning:  s.powerFS.WatchdogRunning(),
		PwrEn:      s.powerFS.PwrEn(),
		Alert:      s.powerFS.State() != power.On,
		Pctrl:      s.cfg.EnableAtNight,
		TLimited:   s.chargeFS.IsTempLimited(),
		Night:      s.chargeFS.IsNight(),
		ChgState:   int(s.chargeFS.State()),
	}
	s.bus.SetStatus(status)
	s.bus.SetMeasurements(
		s.chargeFS.VsMv(), s.chargeFS.IsMa(), vbMv, s.chargeFS.IbMa(), s.chargeFS.IcMa(),
		tiC10, teC10, s.chargeFS.MpptMv(), s.chargeFS.CompMv(),
	)

	s.mu.Lock()
	s.lastStatus = s.snapshotLocked(status, tempResult, tiC10, teC10)
	s.mu.Unlock()

	s.web.Broadcast(s.Status())
}
