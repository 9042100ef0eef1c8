package probe

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tkjaer/ping/internal/config"
	"github.com/tkjaer/ping/internal/output"
	"github.com/tkjaer/ping/internal/shared"
	"github.com/tkjaer/ping/internal/stats"
	"github.com/tkjaer/ping/pkg/ptr"
	"github.com/tkjaer/ping/pkg/route"
	"github.com/tkjaer/ping/pkg/transport"
)

type transportConn interface {
	Transport
	Close() error
}

// Variables for mocking in tests.
var (
	openTransport = func(ipv6 bool, ttl int) (transportConn, error) {
		return transport.Open(ipv6, ttl)
	}
	sourceFor = route.Source
)

type outputConfig struct {
	jsonOutput  bool
	jsonFile    string
	metricsAddr string
}

// ProbeManager owns the socket of a run and connects the scheduler to the
// statistics and the outputs.
type ProbeManager struct {
	// Coordination
	mu        sync.Mutex
	wg        sync.WaitGroup
	stopped   bool
	stopOnce  sync.Once
	closeOnce sync.Once

	// Shared resources
	conn       transportConn
	scheduler  *Scheduler
	agg        *stats.Aggregator
	ptrManager *ptr.PtrManager

	target       Target
	probeConfig  ProbeConfig
	outputConfig outputConfig
	stdout       *os.File
}

// NewProbeManager resolves the destination and opens the socket. Errors
// from opening the socket are *transport.OpenError.
func NewProbeManager(a config.Args) (*ProbeManager, error) {
	d, err := getDestinationIP(a)
	if err != nil {
		return nil, err
	}
	src, err := sourceFor(d)
	if err != nil {
		slog.Debug("No source address for destination", "dst", d, "err", err)
	}

	pm := &ProbeManager{
		agg: stats.New(a.Destination),
		target: Target{
			Name:   a.Destination,
			Addr:   d,
			Source: src,
		},
		probeConfig: ProbeConfig{
			TTL:        a.TTL,
			PacketSize: a.PacketSize,
			Interval:   a.Interval,
			Count:      a.Count,
			Timeout:    a.Timeout,
			Grace:      a.Grace,
			Identifier: uint16(os.Getpid() & 0xffff),
		},
		outputConfig: outputConfig{
			jsonOutput:  a.Json,
			jsonFile:    a.JsonFile,
			metricsAddr: a.MetricsAddr,
		},
		stdout: os.Stdout,
	}
	if a.Resolve {
		pm.ptrManager = ptr.NewPtrManager()
	}

	pm.conn, err = openTransport(d.Is6(), a.TTL)
	if err != nil {
		return nil, err
	}
	slog.Debug("Opened ICMP socket", "dst", d, "src", src, "ipv6", d.Is6(), "unbounded", a.Unbounded())

	pm.scheduler = NewScheduler(pm.probeConfig, pm.target, pm.conn)
	return pm, nil
}

// Run sends probes until the scheduler stops, reports every outcome and
// finally prints the summary. It returns an error only on fatal transport
// failure.
func (pm *ProbeManager) Run(ctx context.Context) error {
	pm.mu.Lock()
	if pm.stopped {
		pm.mu.Unlock()
		return nil
	}
	pm.wg.Add(1)
	pm.mu.Unlock()
	defer pm.wg.Done()

	om := pm.createOutputs()
	om.Start(pm.runInfo())

	// Output routine has its own wait group; it ends when the outcome
	// channel is closed.
	var outputWg sync.WaitGroup
	outputWg.Add(1)
	go func() {
		defer outputWg.Done()
		pm.outputRoutine(om)
	}()

	err := pm.scheduler.Run(ctx)

	slog.Debug("Waiting for output routine")
	outputWg.Wait()

	om.Summary(pm.agg.Snapshot())
	if cerr := om.Close(); cerr != nil {
		slog.Warn("Failed to close outputs", "error", cerr)
	}
	return err
}

// Stop ends the run, waits for it to drain and closes the socket. It is
// safe to call more than once and without a prior Run.
func (pm *ProbeManager) Stop() {
	pm.stopOnce.Do(func() {
		slog.Debug("Stopping ProbeManager")
		pm.mu.Lock()
		pm.stopped = true
		pm.mu.Unlock()
		pm.scheduler.Stop()
	})
	pm.wg.Wait()
	pm.closeOnce.Do(func() {
		if err := pm.conn.Close(); err != nil {
			slog.Debug("Closing socket", "error", err)
		}
	})
}

// Summary returns the current statistics.
func (pm *ProbeManager) Summary() shared.Summary {
	return pm.agg.Snapshot()
}

func (pm *ProbeManager) runInfo() shared.RunInfo {
	info := shared.RunInfo{
		Target:      pm.target.Name,
		Address:     pm.target.Addr.String(),
		PayloadSize: pm.probeConfig.PacketSize,
		TTL:         pm.probeConfig.TTL,
		Interval:    pm.probeConfig.Interval,
		Timeout:     pm.scheduler.cfg.Timeout,
		Count:       pm.probeConfig.Count,
		Started:     time.Now(),
	}
	if pm.target.Source.IsValid() {
		info.Source = pm.target.Source.String()
	}
	return info
}

// createOutputs creates and initializes output handlers
func (pm *ProbeManager) createOutputs() *output.OutputManager {
	om := &output.OutputManager{}

	// JSON on stdout replaces the text output
	if pm.outputConfig.jsonOutput {
		jsonOut, err := output.NewJSONOutput("") // empty string = stdout
		if err == nil {
			om.Register(jsonOut)
		}
	} else {
		om.Register(output.NewTextOutput(pm.stdout))
	}

	if pm.outputConfig.jsonFile != "" {
		jsonOut, err := output.NewJSONOutput(pm.outputConfig.jsonFile)
		if err == nil {
			om.Register(jsonOut)
		} else {
			slog.Warn("Failed to create JSON file output", "error", err)
		}
	}

	if pm.outputConfig.metricsAddr != "" {
		metricsOut, err := output.NewMetricsOutput(pm.outputConfig.metricsAddr)
		if err == nil {
			om.Register(metricsOut)
		} else {
			slog.Warn("Failed to start metrics output", "addr", pm.outputConfig.metricsAddr, "error", err)
		}
	}

	return om
}

// outputRoutine feeds every outcome to the aggregator and the outputs.
func (pm *ProbeManager) outputRoutine(om *output.OutputManager) {
	for o := range pm.scheduler.Outcomes() {
		if pm.ptrManager != nil && o.Addr != "" {
			o.PTR = pm.ptrManager.Lookup(o.Addr)
		}
		pm.agg.Observe(o)
		om.Outcome(o, pm.agg.Snapshot())
	}
}
