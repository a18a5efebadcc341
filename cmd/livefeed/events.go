package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	eventsTail   int
	eventsFollow bool
	eventsKind   string
	eventsLevel  string
	eventsComp   string
	eventsConn   string
	eventsJSON   bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the JSONL event log",
	Args:  cobra.NoArgs,
	RunE:  runEvents,
}

func init() {
	f := eventsCmd.Flags()
	f.IntVarP(&eventsTail, "tail", "n", 50, "number of recent lines to show")
	f.BoolVarP(&eventsFollow, "follow", "f", false, "follow mode (like tail -f)")
	f.StringVar(&eventsKind, "kind", "", "filter by event kind prefix (e.g. 'poll')")
	f.StringVar(&eventsLevel, "level", "", "minimum level: debug, info, warn, error")
	f.StringVar(&eventsComp, "comp", "", "filter by component name")
	f.StringVar(&eventsConn, "conn", "", "filter by connection id prefix")
	f.BoolVar(&eventsJSON, "json", false, "output raw JSON lines")
}

// eventRecord mirrors otel.Event for JSON decoding, so logs written by
// older builds still decode.
type eventRecord struct {
	Time      time.Time      `json:"t"`
	Level     string         `json:"level"`
	Kind      string         `json:"kind"`
	Comp      string         `json:"comp"`
	SessionID string         `json:"session_id"`
	ConnID    string         `json:"conn_id"`
	DurMs     float64        `json:"dur_ms"`
	Count     int            `json:"count"`
	Seq       uint64         `json:"seq"`
	Source    string         `json:"source"`
	State     string         `json:"state"`
	Err       string         `json:"err"`
	Msg       string         `json:"msg"`
	Extra     map[string]any `json:"extra"`
}

// levelRank returns a numeric rank for filtering (higher = more severe).
func levelRank(level string) int {
	switch level {
	case "debug":
		return 0
	case "info":
		return 1
	case "warn":
		return 2
	case "error":
		return 3
	default:
		return 0
	}
}

// eventFilter holds the match criteria of the events command.
type eventFilter struct {
	kind, level, comp, conn string
}

func (f eventFilter) match(ev eventRecord) bool {
	if f.kind != "" && !strings.HasPrefix(ev.Kind, f.kind) {
		return false
	}
	if f.level != "" && levelRank(ev.Level) < levelRank(f.level) {
		return false
	}
	if f.comp != "" && ev.Comp != f.comp {
		return false
	}
	if f.conn != "" && !strings.HasPrefix(ev.ConnID, f.conn) {
		return false
	}
	return true
}

func formatEvent(ev eventRecord) string {
	ts := ev.Time.Format("15:04:05.000")
	lvl := strings.ToUpper(ev.Level)
	if lvl == "" {
		lvl = "?"
	}

	parts := []string{fmt.Sprintf("%s %-5s [%-10s] %-20s", ts, lvl, ev.Comp, ev.Kind)}

	if ev.State != "" {
		parts = append(parts, "state="+ev.State)
	}
	if ev.Msg != "" {
		parts = append(parts, "- "+ev.Msg)
	}
	if ev.DurMs > 0 {
		parts = append(parts, fmt.Sprintf("(%.*fms)", durPrecision(ev.DurMs), ev.DurMs))
	}
	if ev.Count > 0 {
		parts = append(parts, fmt.Sprintf("n=%d", ev.Count))
	}
	if ev.Seq > 0 {
		parts = append(parts, fmt.Sprintf("seq=%d", ev.Seq))
	}
	if ev.ConnID != "" {
		id := ev.ConnID
		if len(id) > 8 {
			id = id[:8]
		}
		parts = append(parts, "conn="+id)
	}
	if ev.Err != "" {
		parts = append(parts, "err="+ev.Err)
	}

	return strings.Join(parts, " ")
}

func runEvents(cmd *cobra.Command, args []string) error {
	logPath := cfg.Log.Path

	f, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("event log not found at %s (run livefeed first to generate events): %w", logPath, err)
	}
	defer f.Close()

	filter := eventFilter{kind: eventsKind, level: eventsLevel, comp: eventsComp, conn: eventsConn}
	out := cmd.OutOrStdout()
	printLine := func(ev eventRecord, raw []byte) {
		if eventsJSON {
			fmt.Fprintln(out, string(raw))
			return
		}
		fmt.Fprintln(out, formatEvent(ev))
	}

	for _, l := range readTailLines(f, eventsTail, filter.match) {
		printLine(l.ev, l.raw)
	}
	if !eventsFollow {
		return nil
	}

	// Follow mode: the file offset is at EOF, poll for new lines
	ctx := cmd.Context()
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		line = trimLine(line)
		if len(line) == 0 {
			continue
		}
		var ev eventRecord
		if json.Unmarshal(line, &ev) != nil {
			continue
		}
		if filter.match(ev) {
			printLine(ev, line)
		}
	}
}

type parsedLine struct {
	ev  eventRecord
	raw []byte
}

// readTailLines reads r and returns the last n lines matching the filter.
func readTailLines(r io.Reader, n int, match func(eventRecord) bool) []parsedLine {
	if n <= 0 {
		return nil
	}
	scanner := bufio.NewScanner(r)
	// Allow large lines (some events may have big Extra maps)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)

	ring := make([]parsedLine, 0, n)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev eventRecord
		if json.Unmarshal(raw, &ev) != nil {
			continue
		}
		if !match(ev) {
			continue
		}
		// scanner reuses its buffer
		rawCopy := make([]byte, len(raw))
		copy(rawCopy, raw)

		if len(ring) < n {
			ring = append(ring, parsedLine{ev: ev, raw: rawCopy})
		} else {
			copy(ring, ring[1:])
			ring[n-1] = parsedLine{ev: ev, raw: rawCopy}
		}
	}
	return ring
}

func trimLine(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func durPrecision(ms float64) int {
	if ms >= 100 {
		return 0
	}
	if ms >= 1 {
		return 1
	}
	return 2
}
