package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tkjaer/ping/internal/shared"
)

func TestNewJSONOutput_Stdout(t *testing.T) {
	output, err := NewJSONOutput("")
	if err != nil {
		t.Fatalf("NewJSONOutput() error = %v", err)
	}
	defer output.Close()

	if !output.toStdout {
		t.Error("NewJSONOutput(\"\") should output to stdout")
	}
	if output.file != os.Stdout {
		t.Error("NewJSONOutput(\"\") file should be os.Stdout")
	}
}

func TestNewJSONOutput_BadPath(t *testing.T) {
	if _, err := NewJSONOutput(filepath.Join(t.TempDir(), "missing", "out.json")); err == nil {
		t.Error("NewJSONOutput() expected error for missing directory")
	}
}

func readJSONLines(t *testing.T, filename string) []map[string]any {
	t.Helper()
	f, err := os.Open(filename)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()

	var records []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("invalid JSON line %q: %v", scanner.Text(), err)
		}
		records = append(records, rec)
	}
	return records
}

func TestJSONOutput_Records(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "run.json")
	output, err := NewJSONOutput(filename)
	if err != nil {
		t.Fatalf("NewJSONOutput() error = %v", err)
	}

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	output.Start(shared.RunInfo{Target: "example.com", Address: "192.0.2.1", PayloadSize: 56, TTL: 255, Interval: time.Second, Count: 2, Started: now})
	output.Outcome(shared.Outcome{Kind: shared.KindReply, Seq: 1, Addr: "192.0.2.1", TTL: 57, RTT: 2500 * time.Microsecond, Size: 64, Time: now},
		shared.Summary{Sent: 1, Received: 1})
	output.Outcome(shared.Outcome{Kind: shared.KindTimeout, Seq: 2, Time: now},
		shared.Summary{Sent: 2, Received: 1, LossPct: 50})
	output.Summary(shared.Summary{Target: "example.com", Sent: 2, Received: 1, LossPct: 50, Timeouts: 1,
		RTTMin: 2500 * time.Microsecond, RTTAvg: 2500 * time.Microsecond, RTTMax: 2500 * time.Microsecond})
	if err := output.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	recs := readJSONLines(t, filename)
	if len(recs) != 4 {
		t.Fatalf("got %d records, want 4", len(recs))
	}

	if recs[0]["type"] != "start" || recs[0]["addr"] != "192.0.2.1" {
		t.Errorf("start record = %v", recs[0])
	}

	reply := recs[1]
	if reply["type"] != "outcome" || reply["kind"] != "reply" || reply["seq"] != 1.0 ||
		reply["ttl"] != 57.0 || reply["rtt_ms"] != 2.5 || reply["size"] != 64.0 {
		t.Errorf("reply record = %v", reply)
	}

	timeout := recs[2]
	if timeout["kind"] != "timeout" || timeout["loss_pct"] != 50.0 {
		t.Errorf("timeout record = %v", timeout)
	}
	if _, ok := timeout["rtt_ms"]; ok {
		t.Error("timeout record should not carry rtt_ms")
	}

	summary := recs[3]
	if summary["type"] != "summary" || summary["sent"] != 2.0 || summary["received"] != 1.0 ||
		summary["timeouts"] != 1.0 || summary["rtt_avg_ms"] != 2.5 {
		t.Errorf("summary record = %v", summary)
	}
}

func TestJSONOutput_Close_Stdout(t *testing.T) {
	output, err := NewJSONOutput("")
	if err != nil {
		t.Fatalf("NewJSONOutput() error = %v", err)
	}
	if err := output.Close(); err != nil {
		t.Errorf("Close() on stdout error = %v", err)
	}
}

func TestNewJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	output := NewJSONWriter(&buf)
	output.Outcome(shared.Outcome{Kind: shared.KindUnreachable, Seq: 4, Addr: "203.0.113.1", Code: 1}, shared.Summary{Sent: 4, LossPct: 100})
	if err := output.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if rec["kind"] != "unreachable" || rec["code"] != 1.0 || rec["loss_pct"] != 100.0 {
		t.Errorf("record = %v", rec)
	}
	if _, ok := rec["rtt_ms"]; ok {
		t.Error("rtt_ms set on a non-reply outcome")
	}
}
