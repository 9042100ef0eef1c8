package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	flag "github.com/spf13/pflag"
)

func parseWith(t *testing.T, argv ...string) (Args, error) {
	t.Helper()
	// Reset flag package for each parse
	flag.CommandLine = flag.NewFlagSet("test", flag.ContinueOnError)
	flag.CommandLine.SetOutput(&bytes.Buffer{})

	oldArgs := os.Args
	os.Args = append([]string{"cmd"}, argv...)
	t.Cleanup(func() { os.Args = oldArgs })

	return ParseArgs()
}

func Test_parseLogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // default
		{"", slog.LevelInfo},        // default
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if got := parseLogLevel(tt.level); got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestParseArgs_Validation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "missing destination",
			args:    []string{},
			wantErr: "destination is required",
		},
		{
			name:    "conflicting destinations",
			args:    []string{"--ip", "192.0.2.1", "192.0.2.2"},
			wantErr: "destination given both as --ip and as argument",
		},
		{
			name:    "two positional destinations",
			args:    []string{"192.0.2.1", "192.0.2.2"},
			wantErr: "only one destination is supported",
		},
		{
			name:    "both IPv4 and IPv6",
			args:    []string{"-4", "-6", "example.com"},
			wantErr: "cannot force both IPv4 and IPv6",
		},
		{
			name:    "ttl zero",
			args:    []string{"--ttl", "0", "192.0.2.1"},
			wantErr: "ttl must be between 1 and 255",
		},
		{
			name:    "ttl too large",
			args:    []string{"-t", "256", "192.0.2.1"},
			wantErr: "ttl must be between 1 and 255",
		},
		{
			name:    "zero count",
			args:    []string{"-c", "0", "192.0.2.1"},
			wantErr: "count must be positive, or negative for no limit",
		},
		{
			name:    "negative packet size",
			args:    []string{"--packet-size=-1", "192.0.2.1"},
			wantErr: "packet size must be between 0 and 65507",
		},
		{
			name:    "oversized packet",
			args:    []string{"-s", "65508", "192.0.2.1"},
			wantErr: "packet size must be between 0 and 65507",
		},
		{
			name:    "zero interval",
			args:    []string{"-i", "0", "192.0.2.1"},
			wantErr: "interval must be at least 1 ms",
		},
		{
			name:    "negative timeout",
			args:    []string{"--timeout=-5", "192.0.2.1"},
			wantErr: "timeout must not be negative",
		},
		{
			name:    "invalid log level",
			args:    []string{"--log-level", "trace", "192.0.2.1"},
			wantErr: "log level must be one of debug, info, warn, error",
		},
		{
			name: "valid --ip",
			args: []string{"--ip", "192.0.2.1"},
		},
		{
			name: "same destination twice",
			args: []string{"--ip", "192.0.2.1", "192.0.2.1"},
		},
		{
			name: "valid hostname with IPv6",
			args: []string{"-6", "example.com"},
		},
		{
			name: "valid unbounded count",
			args: []string{"--count=-1", "192.0.2.1"},
		},
		{
			name: "valid empty payload",
			args: []string{"-s", "0", "192.0.2.1"},
		},
		{
			name: "valid json and json-file",
			args: []string{"-J", "-j", "out.json", "192.0.2.1"},
		},
		{
			name: "valid metrics address",
			args: []string{"--metrics-addr", ":9100", "192.0.2.1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := parseWith(t, tt.args...)

			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("ParseArgs() expected error %q, got nil", tt.wantErr)
				}
				if err.Error() != tt.wantErr {
					t.Errorf("ParseArgs() error = %v, want %v", err.Error(), tt.wantErr)
				}
				var ce *ConfigError
				if !errors.As(err, &ce) {
					t.Errorf("ParseArgs() error %T is not a *ConfigError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseArgs() unexpected error: %v", err)
			}
			if args.Destination == "" {
				t.Error("ParseArgs() destination should be set for valid args")
			}
		})
	}
}

func TestParseArgs_InvalidFlags(t *testing.T) {
	tests := [][]string{
		{"--no-such-flag", "192.0.2.1"},
		{"--metrics-addr", "9100", "192.0.2.1"},
		{"-c", "many", "192.0.2.1"},
	}
	for _, argv := range tests {
		_, err := parseWith(t, argv...)
		var ce *ConfigError
		if !errors.As(err, &ce) {
			t.Errorf("ParseArgs(%v) error = %v, want *ConfigError", argv, err)
		}
	}
}

func TestParseArgs_Defaults(t *testing.T) {
	args, err := parseWith(t, "192.0.2.1")
	if err != nil {
		t.Fatalf("ParseArgs() unexpected error: %v", err)
	}

	if args.TTL != 255 {
		t.Errorf("Default TTL = %v, want 255", args.TTL)
	}
	if args.Count != -1 || !args.Unbounded() {
		t.Errorf("Default count = %v, want -1 (unbounded)", args.Count)
	}
	if args.PacketSize != 56 {
		t.Errorf("Default packet size = %v, want 56", args.PacketSize)
	}
	if args.Interval != time.Second {
		t.Errorf("Default interval = %v, want 1s", args.Interval)
	}
	if args.Timeout != args.Interval {
		t.Errorf("Default timeout = %v, want interval %v", args.Timeout, args.Interval)
	}
	if args.Grace != args.Timeout {
		t.Errorf("Default grace = %v, want timeout %v", args.Grace, args.Timeout)
	}
	if args.LogLevel != "error" {
		t.Errorf("Default log level = %v, want error", args.LogLevel)
	}
	if args.Json || args.JsonFile != "" || args.MetricsAddr != "" || args.Resolve {
		t.Errorf("Output options should be off by default: %+v", args)
	}
	if args.Destination != "192.0.2.1" {
		t.Errorf("Destination = %v, want 192.0.2.1", args.Destination)
	}
}

func TestParseArgs_Timing(t *testing.T) {
	args, err := parseWith(t, "-i", "200", "-W", "500", "--grace", "50", "-c", "3", "--debug", "192.0.2.1")
	if err != nil {
		t.Fatalf("ParseArgs() unexpected error: %v", err)
	}
	if args.Interval != 200*time.Millisecond || args.Timeout != 500*time.Millisecond || args.Grace != 50*time.Millisecond {
		t.Errorf("interval/timeout/grace = %v/%v/%v, want 200ms/500ms/50ms", args.Interval, args.Timeout, args.Grace)
	}
	if args.Count != 3 || args.Unbounded() {
		t.Errorf("Count = %v, want 3", args.Count)
	}
	if args.LogLevel != "debug" {
		t.Errorf("--debug should force log level debug, got %v", args.LogLevel)
	}
}

func TestSetupLogging(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	t.Run("text to stderr", func(t *testing.T) {
		var stderr bytes.Buffer
		f, err := setupLogging(Args{LogLevel: "warn"}, &stderr)
		if err != nil || f != nil {
			t.Fatalf("setupLogging() = %v, %v", f, err)
		}
		slog.Info("hidden")
		slog.Warn("shown", "seq", 1)
		out := stderr.String()
		if strings.Contains(out, "hidden") || !strings.Contains(out, "msg=shown seq=1") {
			t.Errorf("unexpected log output %q", out)
		}
	})

	t.Run("json with file", func(t *testing.T) {
		var stderr bytes.Buffer
		path := filepath.Join(t.TempDir(), "ping.log")
		f, err := setupLogging(Args{Json: true, Debug: true, Log: path}, &stderr)
		if err != nil {
			t.Fatalf("setupLogging() error = %v", err)
		}
		slog.Debug("probe sent", "seq", 7)
		f.Close()

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		for name, out := range map[string]string{"stderr": stderr.String(), "file": string(data)} {
			if !strings.Contains(out, `"msg":"probe sent"`) || !strings.Contains(out, `"source"`) {
				t.Errorf("%s log = %q, want JSON debug record with source", name, out)
			}
		}
	})
}
