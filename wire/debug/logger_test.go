package debug

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/user/blue-att/wire/att"
	"github.com/user/blue-att/wire/l2cap"
)

// readRecords parses every line of a JSONL debug file.
func readRecords(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var records []map[string]interface{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var s structpb.Struct
		if err := protojson.Unmarshal(sc.Bytes(), &s); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		records = append(records, s.AsMap())
	}
	return records
}

func TestDisabledLoggerWritesNothing(t *testing.T) {
	t.Setenv("BLUE_ATT_DIR", t.TempDir())
	d := NewDebugLogger("test", false)
	d.LogATTPacket("rx", "peer", &att.ReadRequest{Handle: 3}, []byte{0x0A, 0x03, 0x00})
	if d.Dir() != "" {
		t.Errorf("disabled logger has dir %q", d.Dir())
	}
}

func TestLogATTPacket(t *testing.T) {
	t.Setenv("BLUE_ATT_DIR", t.TempDir())
	d := NewDebugLogger("test", true)

	raw := []byte{0x12, 0x04, 0x00, 0x01, 0x00}
	pkt, err := att.DecodePacket(raw)
	if err != nil {
		t.Fatalf("DecodePacket failed: %v", err)
	}
	d.LogATTPacket("rx", "peer-1", pkt, raw)
	d.LogATTPacket("rx", "peer-1", nil, []byte{0x0A, 0x01})

	records := readRecords(t, filepath.Join(d.Dir(), ATTPacketsFile))
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	write := records[0]
	if write["direction"] != "rx" || write["peer"] != "peer-1" || write["opcode"] != "0x12" {
		t.Errorf("record = %v", write)
	}
	if write["raw_hex"] != "1204000100" {
		t.Errorf("raw_hex = %v", write["raw_hex"])
	}
	data, ok := write["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("data = %v", write["data"])
	}
	if data["handle"] != att.Handle(4).String() || data["value_hex"] != "0100" {
		t.Errorf("data = %v", data)
	}

	if records[1]["malformed"] != true {
		t.Errorf("malformed record = %v", records[1])
	}
}

func TestLogL2CAPAndGATT(t *testing.T) {
	d := NewDebugLoggerAt(t.TempDir())

	d.LogL2CAPPacket("tx", "peer", l2cap.NewATTPacket([]byte{0x13}))
	d.LogGATTOperation("peer", "notify", att.UUID16(0x2A19), 3, []byte{0x50})

	frames := readRecords(t, filepath.Join(d.Dir(), L2CAPPacketsFile))
	if len(frames) != 1 || frames[0]["channel_name"] != "ATT" || frames[0]["payload_hex"] != "13" {
		t.Errorf("l2cap records = %v", frames)
	}

	ops := readRecords(t, filepath.Join(d.Dir(), GATTOperationsFile))
	if len(ops) != 1 || ops[0]["operation"] != "notify" || ops[0]["data_hex"] != "50" {
		t.Errorf("gatt records = %v", ops)
	}
}

func TestDescribeATTPacket(t *testing.T) {
	tests := []struct {
		packet interface{}
		key    string
	}{
		{&att.ExchangeMTURequest{ClientRxMTU: 247}, "client_rx_mtu"},
		{&att.ReadBlobRequest{Handle: 3, Offset: 22}, "offset"},
		{&att.ReadMultipleRequest{Handles: []att.Handle{1, 2}}, "handles"},
		{&att.ErrorResponse{RequestOpcode: att.OpReadRequest, Handle: 9, ErrorCode: att.ErrInvalidHandle}, "error"},
		{&att.ExecuteWriteRequest{Flags: att.ExecuteWriteCommit}, "commit"},
		{&att.HandleValueIndication{Handle: 3, Value: []byte{1}}, "value_hex"},
	}
	for _, tt := range tests {
		data := describeATTPacket(tt.packet)
		if _, ok := data[tt.key]; !ok {
			t.Errorf("describeATTPacket(%T) = %v, missing %s", tt.packet, data, tt.key)
		}
		if _, err := structpb.NewStruct(data); err != nil {
			t.Errorf("describeATTPacket(%T) not representable: %v", tt.packet, err)
		}
	}
}
