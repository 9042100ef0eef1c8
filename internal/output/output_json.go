package output

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/tkjaer/ping/internal/shared"
)

// JSONOutput writes newline-delimited JSON records to a file or stdout.
type JSONOutput struct {
	mu       sync.Mutex
	file     io.WriteCloser
	enc      *json.Encoder
	toStdout bool
}

type jsonStart struct {
	Type        string    `json:"type"`
	Target      string    `json:"target"`
	Address     string    `json:"addr"`
	Source      string    `json:"source,omitempty"`
	PayloadSize int       `json:"size"`
	TTL         int       `json:"ttl"`
	IntervalMs  float64   `json:"interval_ms"`
	TimeoutMs   float64   `json:"timeout_ms"`
	Count       int       `json:"count"`
	Time        time.Time `json:"time"`
}

type jsonOutcome struct {
	Type string `json:"type"`
	shared.Outcome
	RTTMs   *float64 `json:"rtt_ms,omitempty"`
	LossPct float64  `json:"loss_pct"`
}

type jsonSummary struct {
	Type string `json:"type"`
	shared.Summary
	RTTMinMs    float64 `json:"rtt_min_ms"`
	RTTAvgMs    float64 `json:"rtt_avg_ms"`
	RTTMaxMs    float64 `json:"rtt_max_ms"`
	RTTStdDevMs float64 `json:"rtt_stddev_ms"`
	ElapsedMs   float64 `json:"elapsed_ms"`
}

// NewJSONOutput writes to filename, or to stdout when filename is empty.
func NewJSONOutput(filename string) (*JSONOutput, error) {
	if filename == "" {
		return &JSONOutput{
			file:     os.Stdout,
			enc:      json.NewEncoder(os.Stdout),
			toStdout: true,
		}, nil
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &JSONOutput{
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

// NewJSONWriter writes to w. Close leaves w open.
func NewJSONWriter(w io.Writer) *JSONOutput {
	return &JSONOutput{
		enc:      json.NewEncoder(w),
		toStdout: true,
	}
}

func (j *JSONOutput) encode(v any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	_ = j.enc.Encode(v)
}

func (j *JSONOutput) Start(info shared.RunInfo) {
	j.encode(jsonStart{
		Type:        "start",
		Target:      info.Target,
		Address:     info.Address,
		Source:      info.Source,
		PayloadSize: info.PayloadSize,
		TTL:         info.TTL,
		IntervalMs:  shared.Millis(info.Interval),
		TimeoutMs:   shared.Millis(info.Timeout),
		Count:       info.Count,
		Time:        info.Started,
	})
}

func (j *JSONOutput) Outcome(o shared.Outcome, running shared.Summary) {
	rec := jsonOutcome{Type: "outcome", Outcome: o, LossPct: running.LossPct}
	if o.Kind == shared.KindReply {
		ms := shared.Millis(o.RTT)
		rec.RTTMs = &ms
	}
	j.encode(rec)
}

func (j *JSONOutput) Summary(s shared.Summary) {
	j.encode(jsonSummary{
		Type:        "summary",
		Summary:     s,
		RTTMinMs:    shared.Millis(s.RTTMin),
		RTTAvgMs:    shared.Millis(s.RTTAvg),
		RTTMaxMs:    shared.Millis(s.RTTMax),
		RTTStdDevMs: shared.Millis(s.RTTStdDev),
		ElapsedMs:   shared.Millis(s.Elapsed),
	})
}

func (j *JSONOutput) Close() error {
	if j.toStdout || j.file == nil {
		return nil
	}
	return j.file.Close()
}
