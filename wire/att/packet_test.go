package att

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

func TestEncodePacket(t *testing.T) {
	tests := []struct {
		name string
		pkt  interface{}
		want string
	}{
		{"mtu request", &ExchangeMTURequest{ClientRxMTU: 517}, "020502"},
		{"error response", &ErrorResponse{RequestOpcode: OpReadRequest, Handle: 0x0003, ErrorCode: ErrReadNotPermitted}, "010a030002"},
		{"find information", &FindInformationRequest{Range: FullHandleRange()}, "040100ffff"},
		{"find by type value", &FindByTypeValueRequest{Range: FullHandleRange(), Type: 0x2800, Value: []byte{0x0f, 0x18}}, "060100ffff00280f18"},
		{"read by type 16", &ReadByTypeRequest{Range: FullHandleRange(), Type: UUID16(0x2a19)}, "080100ffff192a"},
		{"read blob", &ReadBlobRequest{Handle: 0x0010, Offset: 22}, "0c10001600"},
		{"read multiple", &ReadMultipleRequest{Handles: []Handle{3, 5}}, "0e03000500"},
		{"write", &WriteRequest{Handle: 0x0003, Value: []byte("hi")}, "1203006869"},
		{"write command", &WriteCommand{Handle: 0x0003, Value: []byte{1}}, "52030001"},
		{"prepare write", &PrepareWriteRequest{Handle: 0x0010, Offset: 18, Value: []byte{0xaa}}, "1610001200aa"},
		{"execute", &ExecuteWriteRequest{Flags: ExecuteWriteCommit}, "1801"},
		{"notification", &HandleValueNotification{Handle: 0x0003, Value: []byte{0x64}}, "1b030064"},
		{"confirmation", &HandleValueConfirmation{}, "1e"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodePacket(tt.pkt)
			if err != nil {
				t.Fatalf("EncodePacket failed: %v", err)
			}
			if want := mustHex(t, tt.want); !bytes.Equal(got, want) {
				t.Errorf("Encoded = %x, want %x", got, want)
			}
		})
	}
}

func TestEncodePacketRejects(t *testing.T) {
	if _, err := EncodePacket(&ReadMultipleRequest{Handles: []Handle{1}}); err == nil {
		t.Error("Expected error for Read Multiple with one handle")
	}
	if _, err := EncodePacket(struct{}{}); err == nil {
		t.Error("Expected error for unknown packet type")
	}
}

func TestDecodeRequests(t *testing.T) {
	pkt, err := DecodePacket(mustHex(t, "08010010000028"))
	if err != nil {
		t.Fatalf("DecodePacket failed: %v", err)
	}
	rbt, ok := pkt.(*ReadByTypeRequest)
	if !ok {
		t.Fatalf("Decoded type = %T, want *ReadByTypeRequest", pkt)
	}
	if rbt.Range.Start() != 0x0001 || rbt.Range.End() != 0x0010 {
		t.Errorf("Range = %s, want 0x0001-0x0010", rbt.Range)
	}
	if !rbt.Type.Equal(PrimaryServiceUUID) || rbt.Type.Len() != 2 {
		t.Errorf("Type = %s (len %d), want 2800", rbt.Type, rbt.Type.Len())
	}

	pkt, err = DecodePacket(mustHex(t, "0e010002000300"))
	if err != nil {
		t.Fatalf("DecodePacket failed: %v", err)
	}
	rm := pkt.(*ReadMultipleRequest)
	if len(rm.Handles) != 3 || rm.Handles[2] != 3 {
		t.Errorf("Handles = %v, want [1 2 3]", rm.Handles)
	}

	sig := "0300" + "aabb" + "000102030405060708090a0b"
	pkt, err = DecodePacket(mustHex(t, "d2"+sig))
	if err != nil {
		t.Fatalf("DecodePacket failed: %v", err)
	}
	sw := pkt.(*SignedWriteCommand)
	if !bytes.Equal(sw.Value, []byte{0xaa, 0xbb}) || sw.Signature[11] != 0x0b {
		t.Errorf("SignedWriteCommand = %+v", sw)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		pdu  string
		want error
	}{
		{"empty", "", ErrTruncatedPDU},
		{"short mtu", "0217", ErrTruncatedPDU},
		{"long mtu", "02170000", ErrTruncatedPDU},
		{"short read", "0a01", ErrTruncatedPDU},
		{"find info start zero", "040000ffff", ErrInvalidHandleRange},
		{"find info reversed", "0405000100", ErrInvalidHandleRange},
		{"read by type bad uuid", "080100ffff0028aa", ErrMalformedUUID},
		{"read multiple single", "0e0100", ErrTruncatedPDU},
		{"read multiple odd", "0e01000200ff", ErrTruncatedPDU},
		{"execute no flags", "18", ErrTruncatedPDU},
		{"unknown", "7f", ErrRequestNotSupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePacket(mustHex(t, tt.pdu))
			if !errors.Is(err, tt.want) {
				t.Errorf("DecodePacket error = %v, want %v", err, tt.want)
			}
		})
	}
}
