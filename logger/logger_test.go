package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"google.golang.org/protobuf/types/known/structpb"
)

func capture(t *testing.T, level LogLevel) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := GetLevel()
	SetOutput(&buf)
	SetLevel(level)
	t.Cleanup(func() {
		SetLevel(prev)
		SetOutput(os.Stdout)
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, WARN)

	Debug("ATT", "hidden %d", 1)
	Info("ATT", "hidden %d", 2)
	Warn("ATT", "shown %d", 3)
	Error("", "shown %d", 4)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("output contains filtered lines:\n%s", out)
	}
	if !strings.Contains(out, "shown 3") || !strings.Contains(out, "shown 4") {
		t.Errorf("output missing lines:\n%s", out)
	}
	if !strings.Contains(out, "ATT") {
		t.Errorf("output missing prefix:\n%s", out)
	}
}

func TestTraceNeedsTraceLevel(t *testing.T) {
	buf := capture(t, DEBUG)
	Trace("ATT", "pdu")
	if buf.Len() != 0 {
		t.Errorf("Trace logged at DEBUG level: %q", buf.String())
	}

	SetLevel(TRACE)
	Trace("ATT", "pdu")
	if !strings.Contains(buf.String(), "pdu") {
		t.Errorf("Trace not logged at TRACE level: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"trace": TRACE,
		"DEBUG": DEBUG,
		"warn":  WARN,
		"Error": ERROR,
		"bogus": INFO,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestToJSON(t *testing.T) {
	msg, err := structpb.NewStruct(map[string]interface{}{"handle": "0x0003"})
	if err != nil {
		t.Fatalf("NewStruct failed: %v", err)
	}
	if got := ToJSON(msg); !strings.Contains(got, `"handle"`) || !strings.Contains(got, "0x0003") {
		t.Errorf("ToJSON(proto) = %s", got)
	}

	if got := ToJSON(map[string]int{"mtu": 23}); !strings.Contains(got, `"mtu": 23`) {
		t.Errorf("ToJSON(map) = %s", got)
	}
}
