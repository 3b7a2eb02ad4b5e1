package debug

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/user/blue-att/util"
	"github.com/user/blue-att/wire/att"
	"github.com/user/blue-att/wire/l2cap"
)

// Files written under the debug directory, one JSON object per line
const (
	L2CAPPacketsFile   = "l2cap_packets.jsonl"
	ATTPacketsFile     = "att_packets.jsonl"
	GATTOperationsFile = "gatt_operations.jsonl"
)

// DebugLogger writes human-readable JSON logs of binary BLE packets.
// These files are write-only; nothing in the server reads them back.
type DebugLogger struct {
	debugDir string
	enabled  bool
	mu       sync.Mutex
}

var (
	_ att.PacketLogger   = (*DebugLogger)(nil)
	_ l2cap.FrameLogger = (*DebugLogger)(nil)
)

// NewDebugLogger creates a debug logger writing to the "debug" directory
// of the named instance's data directory.
func NewDebugLogger(instance string, enabled bool) *DebugLogger {
	if !enabled {
		return &DebugLogger{enabled: false}
	}
	return NewDebugLoggerAt(filepath.Join(util.GetDeviceCacheDir(instance), "debug"))
}

// NewDebugLoggerAt creates an enabled debug logger writing to dir.
func NewDebugLoggerAt(dir string) *DebugLogger {
	os.MkdirAll(dir, 0755)
	return &DebugLogger{debugDir: dir, enabled: true}
}

// Dir returns the directory the logs are written to.
func (d *DebugLogger) Dir() string { return d.debugDir }

// LogL2CAPPacket logs an L2CAP frame to l2cap_packets.jsonl
func (d *DebugLogger) LogL2CAPPacket(direction, peer string, packet *l2cap.Packet) {
	if !d.enabled {
		return
	}
	d.appendJSONL(L2CAPPacketsFile, map[string]interface{}{
		"timestamp":    time.Now().Format(time.RFC3339Nano),
		"direction":    direction,
		"peer":         peer,
		"channel_id":   fmt.Sprintf("0x%04X", packet.ChannelID),
		"channel_name": channelName(packet.ChannelID),
		"payload_len":  len(packet.Payload),
		"payload_hex":  hex.EncodeToString(packet.Payload),
	})
}

// LogATTPacket logs an ATT PDU to att_packets.jsonl. packet is the decoded
// form of raw and may be nil when raw did not decode.
func (d *DebugLogger) LogATTPacket(direction, peer string, packet interface{}, raw []byte) {
	if !d.enabled {
		return
	}

	record := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339Nano),
		"direction": direction,
		"peer":      peer,
		"raw_hex":   hex.EncodeToString(raw),
	}
	if len(raw) > 0 {
		record["opcode"] = fmt.Sprintf("0x%02X", raw[0])
		record["opcode_name"] = att.OpcodeName(raw[0])
	}
	if packet == nil {
		record["malformed"] = true
	} else if data := describeATTPacket(packet); len(data) > 0 {
		record["data"] = data
	}
	d.appendJSONL(ATTPacketsFile, record)
}

// LogGATTOperation logs a server-initiated GATT operation (a notification
// or indication pushed by the application) to gatt_operations.jsonl
func (d *DebugLogger) LogGATTOperation(peer, operation string, charUUID att.UUID, handle att.Handle, data []byte) {
	if !d.enabled {
		return
	}

	record := map[string]interface{}{
		"timestamp":           time.Now().Format(time.RFC3339Nano),
		"direction":           "tx",
		"peer":                peer,
		"operation":           operation,
		"characteristic_uuid": charUUID.String(),
		"handle":              handle.String(),
		"data_len":            len(data),
	}
	if len(data) > 0 {
		record["data_hex"] = hex.EncodeToString(data)
	}
	d.appendJSONL(GATTOperationsFile, record)
}

// appendJSONL appends one record as a JSON line. Debug logging is
// best-effort, so failures are dropped.
func (d *DebugLogger) appendJSONL(filename string, record map[string]interface{}) {
	msg, err := structpb.NewStruct(record)
	if err != nil {
		return
	}
	line, err := protojson.MarshalOptions{UseProtoNames: true}.Marshal(msg)
	if err != nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(d.debugDir, filename), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()
	f.Write(append(line, '\n'))
}

func channelName(channelID uint16) string {
	switch channelID {
	case l2cap.ChannelNULL:
		return "NULL"
	case l2cap.ChannelATT:
		return "ATT"
	case l2cap.ChannelLESignal:
		return "LE L2CAP Signaling"
	case l2cap.ChannelSMP:
		return "SMP"
	default:
		return "Unknown"
	}
}

func valueFields(data map[string]interface{}, value []byte) {
	data["value_len"] = len(value)
	data["value_hex"] = hex.EncodeToString(value)
}

// describeATTPacket extracts the fields of a decoded PDU. All values are
// strings, numbers or nested maps so that structpb accepts them.
func describeATTPacket(packet interface{}) map[string]interface{} {
	data := make(map[string]interface{})

	switch p := packet.(type) {
	case *att.ExchangeMTURequest:
		data["client_rx_mtu"] = int(p.ClientRxMTU)
	case *att.ExchangeMTUResponse:
		data["server_rx_mtu"] = int(p.ServerRxMTU)

	case *att.ErrorResponse:
		data["request_opcode"] = att.OpcodeName(p.RequestOpcode)
		data["handle"] = p.Handle.String()
		data["error"] = p.ErrorCode.Error()

	case *att.FindInformationRequest:
		data["range"] = p.Range.String()
	case *att.FindInformationResponse:
		data["format"] = int(p.Format)
		data["data_hex"] = hex.EncodeToString(p.Data)

	case *att.FindByTypeValueRequest:
		data["range"] = p.Range.String()
		data["type"] = att.UUID16(p.Type).String()
		valueFields(data, p.Value)
	case *att.FindByTypeValueResponse:
		data["data_hex"] = hex.EncodeToString(p.Data)

	case *att.ReadByTypeRequest:
		data["range"] = p.Range.String()
		data["type"] = p.Type.String()
	case *att.ReadByTypeResponse:
		data["length"] = int(p.Length)
		data["data_hex"] = hex.EncodeToString(p.AttributeData)

	case *att.ReadByGroupTypeRequest:
		data["range"] = p.Range.String()
		data["type"] = p.Type.String()
	case *att.ReadByGroupTypeResponse:
		data["length"] = int(p.Length)
		data["data_hex"] = hex.EncodeToString(p.AttributeData)

	case *att.ReadRequest:
		data["handle"] = p.Handle.String()
	case *att.ReadResponse:
		valueFields(data, p.Value)
	case *att.ReadBlobRequest:
		data["handle"] = p.Handle.String()
		data["offset"] = int(p.Offset)
	case *att.ReadBlobResponse:
		valueFields(data, p.Value)
	case *att.ReadMultipleRequest:
		handles := make([]interface{}, len(p.Handles))
		for i, h := range p.Handles {
			handles[i] = h.String()
		}
		data["handles"] = handles
	case *att.ReadMultipleResponse:
		valueFields(data, p.Values)

	case *att.WriteRequest:
		data["handle"] = p.Handle.String()
		valueFields(data, p.Value)
	case *att.WriteCommand:
		data["handle"] = p.Handle.String()
		valueFields(data, p.Value)
	case *att.SignedWriteCommand:
		data["handle"] = p.Handle.String()
		valueFields(data, p.Value)
		data["signature_hex"] = hex.EncodeToString(p.Signature[:])
	case *att.PrepareWriteRequest:
		data["handle"] = p.Handle.String()
		data["offset"] = int(p.Offset)
		valueFields(data, p.Value)
	case *att.PrepareWriteResponse:
		data["handle"] = p.Handle.String()
		data["offset"] = int(p.Offset)
		valueFields(data, p.Value)
	case *att.ExecuteWriteRequest:
		data["commit"] = p.Flags == att.ExecuteWriteCommit

	case *att.HandleValueNotification:
		data["handle"] = p.Handle.String()
		valueFields(data, p.Value)
	case *att.HandleValueIndication:
		data["handle"] = p.Handle.String()
		valueFields(data, p.Value)
	}

	return data
}
