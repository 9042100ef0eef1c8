package output

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/tkjaer/ping/internal/shared"
)

// TextOutput prints classic ping lines: a header, one line per probe and a
// summary block.
type TextOutput struct {
	mu     sync.Mutex
	w      io.Writer
	target string

	addrStyle lipgloss.Style
	goodStyle lipgloss.Style
	warnStyle lipgloss.Style
	badStyle  lipgloss.Style
	headStyle lipgloss.Style
}

// NewTextOutput writes to w. Colors are used only when w is a terminal.
func NewTextOutput(w io.Writer) *TextOutput {
	r := lipgloss.NewRenderer(w)
	t := &TextOutput{
		w:         w,
		addrStyle: r.NewStyle(),
		goodStyle: r.NewStyle(),
		warnStyle: r.NewStyle(),
		badStyle:  r.NewStyle(),
		headStyle: r.NewStyle(),
	}
	if isTerminal(w) {
		t.addrStyle = t.addrStyle.Foreground(lipgloss.Color("#60A5FA"))
		t.goodStyle = t.goodStyle.Foreground(lipgloss.Color("#34D399"))
		t.warnStyle = t.warnStyle.Foreground(lipgloss.Color("#FBBF24"))
		t.badStyle = t.badStyle.Foreground(lipgloss.Color("#F87171"))
		t.headStyle = t.headStyle.Bold(true)
	}
	return t
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (t *TextOutput) printf(format string, a ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, format, a...)
}

func (t *TextOutput) Start(info shared.RunInfo) {
	t.target = info.Target
	t.printf("%s\n", t.headStyle.Render(fmt.Sprintf("PING %s (%s): %d data bytes", info.Target, info.Address, info.PayloadSize)))
}

func (t *TextOutput) host(o shared.Outcome) string {
	if o.PTR != "" {
		return fmt.Sprintf("%s (%s)", o.PTR, t.addrStyle.Render(o.Addr))
	}
	return t.addrStyle.Render(o.Addr)
}

func (t *TextOutput) Outcome(o shared.Outcome, running shared.Summary) {
	switch o.Kind {
	case shared.KindReply:
		t.printf("%d bytes from %s: icmp_seq=%d ttl=%d rtt=%s ms loss=%s%%\n",
			o.Size, t.host(o), o.Seq, o.TTL,
			t.goodStyle.Render(fmt.Sprintf("%.3f", shared.Millis(o.RTT))),
			shared.FormatPct(running.LossPct))
	case shared.KindTTLExceeded:
		t.printf("From %s icmp_seq=%d %s\n", t.host(o), o.Seq, t.warnStyle.Render("Time to live exceeded"))
	case shared.KindUnreachable:
		t.printf("From %s icmp_seq=%d %s\n", t.host(o), o.Seq,
			t.badStyle.Render(fmt.Sprintf("Destination unreachable (code %d)", o.Code)))
	case shared.KindTimeout:
		t.printf("%s\n", t.warnStyle.Render(fmt.Sprintf("Request timeout for icmp_seq %d", o.Seq)))
	case shared.KindTransportError:
		t.printf("icmp_seq=%d %s\n", o.Seq, t.badStyle.Render("transport error: "+o.Reason))
	}
}

func (t *TextOutput) Summary(s shared.Summary) {
	target := s.Target
	if target == "" {
		target = t.target
	}
	loss := shared.FormatPct(s.LossPct) + "%"
	switch {
	case s.Sent > 0 && s.Received == s.Sent:
		loss = t.goodStyle.Render(loss)
	case s.Received == 0 && s.Sent > 0:
		loss = t.badStyle.Render(loss)
	case s.Sent > 0:
		loss = t.warnStyle.Render(loss)
	}

	t.printf("\n%s\n", t.headStyle.Render(fmt.Sprintf("--- %s ping statistics ---", target)))
	t.printf("%d packets transmitted, %d packets received, %s packet loss\n", s.Sent, s.Received, loss)
	t.printf("round-trip min/avg/max/stddev = %.3f/%.3f/%.3f/%.3f ms\n",
		shared.Millis(s.RTTMin), shared.Millis(s.RTTAvg), shared.Millis(s.RTTMax), shared.Millis(s.RTTStdDev))
}

func (t *TextOutput) Close() error {
	return nil
}
