package tracelog

import (
	"bufio"
	"encoding/json"
	"os"
	"testing"
	"time"
)

func TestAppend_OneLinePerRecord(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	for i := 0; i < 3; i++ {
		p := TracePacket{
			TraceID:     "trace-" + string(rune('a'+i)),
			ExecutionID: "exec-1",
			TransformID: "identity",
			Timestamp:   time.Unix(0, 0).UTC(),
			InputsHash:  "in",
			OutputsHash: "out",
			DurationMS:  1,
		}
		if err := l.Append(p); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	f, err := os.Open(l.Path())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		var p TracePacket
		if err := json.Unmarshal(scanner.Bytes(), &p); err != nil {
			t.Fatalf("line %d not valid json: %v", count, err)
		}
		count++
	}
	if count != 3 {
		t.Fatalf("expected 3 trace lines, got %d", count)
	}
}

func TestAppend_NeverTruncates(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := l.Append(TracePacket{TraceID: "t1", ExecutionID: "e1", Timestamp: time.Now().UTC()}); err != nil {
		t.Fatalf("append: %v", err)
	}
	info1, _ := os.Stat(l.Path())

	l2, err := New(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := l2.Append(TracePacket{TraceID: "t2", ExecutionID: "e1", Timestamp: time.Now().UTC()}); err != nil {
		t.Fatalf("append: %v", err)
	}
	info2, _ := os.Stat(l.Path())
	if info2.Size() <= info1.Size() {
		t.Fatalf("expected log to grow, before=%d after=%d", info1.Size(), info2.Size())
	}
}
