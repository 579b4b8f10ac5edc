package process

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Paintersrp/tether/internal/runtime"
)

func TestLineWriterSplitsLines(t *testing.T) {
	var got []runtime.LogEntry
	w := newLineWriter(func(e runtime.LogEntry) { got = append(got, e) }, runtime.LogSourceStderr, "warn")

	for _, chunk := range []string{"first\nsec", "ond\r\n", "\n", "tail"} {
		if _, err := w.Write([]byte(chunk)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	w.Close()

	want := []runtime.LogEntry{
		{Message: "first", Source: runtime.LogSourceStderr, Level: "warn"},
		{Message: "second", Source: runtime.LogSourceStderr, Level: "warn"},
		{Message: "tail", Source: runtime.LogSourceStderr, Level: "warn"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
}
