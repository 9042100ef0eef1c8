package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/tkjaer/ping/internal/version"
)

// MaxPacketSize is the largest ICMP payload that fits an IPv4 datagram.
const MaxPacketSize = 65507

// ConfigError reports invalid command line input.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return e.Err.Error() }

func (e *ConfigError) Unwrap() error { return e.Err }

func configError(msg string) error {
	return &ConfigError{Err: errors.New(msg)}
}

type Args struct {
	Destination string

	TTL        int
	Count      int // negative means unbounded
	PacketSize int // payload bytes, excluding the 8 byte ICMP header

	// Timing
	Interval time.Duration
	Timeout  time.Duration
	Grace    time.Duration

	ForceIPv4 bool
	ForceIPv6 bool
	Resolve   bool

	// Output
	Json        bool   // output json to stdout
	JsonFile    string // also write json to file
	MetricsAddr string // serve Prometheus metrics on this address

	// Logging
	Debug    bool
	Log      string // log file path, empty means no logging
	LogLevel string // log level: debug, info, warn, error
}

func ParseArgs() (Args, error) {
	var args Args
	var showVersion bool
	var ip string
	var intervalMs, timeoutMs, graceMs int

	flag.Usage = func() {
		println("ping - ICMP echo utility")
		println()
		println("Sends ICMP Echo Requests to a host and reports replies, losses and round-trip times.")
		println()
		println("Usage:")
		println("  ping [OPTIONS] --ip ADDRESS")
		println("  ping [OPTIONS] DESTINATION")
		println()
		println("Examples:")
		println("  ping --ip 192.0.2.1                  # Ping until interrupted")
		println("  ping -c 4 example.com                # Four probes, then summary")
		println("  ping -t 3 -c 1 2001:db8::1           # Single probe with hop limit 3")
		println("  ping -J -c 10 example.com            # JSON lines to stdout")
		println("  ping --metrics-addr :9100 example.com")
		println()
		println("Options:")
		flag.PrintDefaults()
		println()
		println("Raw ICMP sockets usually require root or CAP_NET_RAW.")
	}

	flag.BoolVarP(&showVersion, "version", "v", false, "Show version information")
	flag.StringVar(&ip, "ip", "", "Destination address (or give it as an argument)")
	flag.IntVarP(&args.TTL, "ttl", "t", 255, "Time to live (IPv4) or hop limit (IPv6), 1-255")
	flag.IntVarP(&args.Count, "count", "c", -1, "Number of probes to send (negative = until interrupted)")
	flag.IntVarP(&args.PacketSize, "packet-size", "s", 56, "Payload size in bytes")
	flag.IntVarP(&intervalMs, "rtt", "i", 1000, "Milliseconds between probes")
	flag.IntVarP(&timeoutMs, "timeout", "W", 0, "Milliseconds to wait for each reply (default: interval)")
	flag.IntVar(&graceMs, "grace", 0, "Milliseconds to wait for outstanding replies after a stop (default: timeout)")
	flag.BoolVarP(&args.ForceIPv4, "ipv4", "4", false, "Force IPv4 when resolving the destination")
	flag.BoolVarP(&args.ForceIPv6, "ipv6", "6", false, "Force IPv6 when resolving the destination")
	flag.BoolVar(&args.Resolve, "resolve", false, "Show hostnames of replying addresses")
	flag.BoolVarP(&args.Json, "json", "J", false, "Write JSON lines to stdout instead of text")
	flag.StringVarP(&args.JsonFile, "json-file", "j", "", "Also write JSON lines to file")
	flag.StringVar(&args.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	flag.BoolVarP(&args.Debug, "debug", "d", false, "Verbose diagnostic logging")
	flag.StringVarP(&args.Log, "log", "l", "", "Diagnostic log file (empty = stderr only)")
	flag.StringVar(&args.LogLevel, "log-level", "error", "Log level: debug, info, warn, error")
	if err := flag.CommandLine.Parse(os.Args[1:]); err != nil {
		return args, &ConfigError{Err: err}
	}

	if showVersion {
		fmt.Println(version.FullVersion())
		os.Exit(0)
	}

	switch {
	case ip != "" && flag.NArg() > 0 && flag.Arg(0) != ip:
		return args, configError("destination given both as --ip and as argument")
	case ip != "":
		args.Destination = ip
	default:
		args.Destination = flag.Arg(0)
	}
	if args.Destination == "" {
		return args, configError("destination is required")
	}

	switch {
	case flag.NArg() > 1:
		return args, configError("only one destination is supported")
	case args.ForceIPv4 && args.ForceIPv6:
		return args, configError("cannot force both IPv4 and IPv6")
	case args.TTL < 1 || args.TTL > 255:
		return args, configError("ttl must be between 1 and 255")
	case args.Count == 0:
		return args, configError("count must be positive, or negative for no limit")
	case args.PacketSize < 0 || args.PacketSize > MaxPacketSize:
		return args, configError(fmt.Sprintf("packet size must be between 0 and %d", MaxPacketSize))
	case intervalMs < 1:
		return args, configError("interval must be at least 1 ms")
	case timeoutMs < 0:
		return args, configError("timeout must not be negative")
	case graceMs < 0:
		return args, configError("grace period must not be negative")
	case args.Json && args.JsonFile == "-":
		return args, configError("--json already writes to stdout")
	case args.LogLevel != "debug" && args.LogLevel != "info" && args.LogLevel != "warn" && args.LogLevel != "error":
		return args, configError("log level must be one of debug, info, warn, error")
	}

	if args.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(args.MetricsAddr); err != nil {
			return args, &ConfigError{Err: fmt.Errorf("invalid metrics address %q: %w", args.MetricsAddr, err)}
		}
	}

	args.Interval = time.Duration(intervalMs) * time.Millisecond
	args.Timeout = args.Interval
	if timeoutMs > 0 {
		args.Timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	args.Grace = args.Timeout
	if graceMs > 0 {
		args.Grace = time.Duration(graceMs) * time.Millisecond
	}
	if args.Debug {
		args.LogLevel = "debug"
	}

	return args, nil
}

// Unbounded reports whether probes are sent until interrupted.
func (a Args) Unbounded() bool {
	return a.Count < 0
}
