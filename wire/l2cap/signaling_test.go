package l2cap

import (
	"bytes"
	"testing"
)

func TestConnectionParametersValidation(t *testing.T) {
	tests := []struct {
		name    string
		params  ConnectionParameters
		wantErr bool
	}{
		{"typical", ConnectionParameters{24, 40, 0, 600}, false},
		{"fastest", ConnectionParameters{6, 6, 0, 10}, false},
		{"with latency", ConnectionParameters{80, 160, 4, 600}, false},
		{"interval min too small", ConnectionParameters{5, 40, 0, 600}, true},
		{"interval max too large", ConnectionParameters{24, 3201, 0, 600}, true},
		{"max below min", ConnectionParameters{40, 24, 0, 600}, true},
		{"latency too large", ConnectionParameters{24, 40, 500, 3200}, true},
		{"timeout too small", ConnectionParameters{24, 40, 0, 9}, true},
		{"timeout too large", ConnectionParameters{24, 40, 0, 3201}, true},
		// (1+4) * 200ms * 2 = 2s, so 2s is not enough
		{"timeout not above interval bound", ConnectionParameters{160, 160, 4, 200}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConnectionParametersEncodeDecode(t *testing.T) {
	p := &ConnectionParameters{IntervalMin: 24, IntervalMax: 40, SlaveLatency: 0, SupervisionTimeout: 600}
	data := p.Encode()
	if want := []byte{0x18, 0x00, 0x28, 0x00, 0x00, 0x00, 0x58, 0x02}; !bytes.Equal(data, want) {
		t.Errorf("Encode() = % X, want % X", data, want)
	}

	got, err := DecodeConnectionParameters(data)
	if err != nil {
		t.Fatalf("DecodeConnectionParameters failed: %v", err)
	}
	if *got != *p {
		t.Errorf("decoded %+v, want %+v", *got, *p)
	}

	if _, err := DecodeConnectionParameters(data[:6]); err == nil {
		t.Error("short parameters decoded")
	}
	bad := (&ConnectionParameters{IntervalMin: 1, IntervalMax: 40, SupervisionTimeout: 600}).Encode()
	if _, err := DecodeConnectionParameters(bad); err == nil {
		t.Error("invalid parameters decoded")
	}
}

func TestSignalingCommand(t *testing.T) {
	raw := []byte{0x12, 0x07, 0x08, 0x00, 0x18, 0x00, 0x28, 0x00, 0x00, 0x00, 0x58, 0x02}
	cmd, err := DecodeSignalingCommand(raw)
	if err != nil {
		t.Fatalf("DecodeSignalingCommand failed: %v", err)
	}
	if cmd.Code != CodeConnectionParameterUpdateRequest || cmd.Identifier != 7 || len(cmd.Data) != 8 {
		t.Errorf("decoded %+v", cmd)
	}
	if !bytes.Equal(cmd.Encode(), raw) {
		t.Errorf("Encode() = % X, want % X", cmd.Encode(), raw)
	}

	for _, short := range [][]byte{{0x12, 0x07}, {0x12, 0x07, 0x08, 0x00, 0x18}} {
		if _, err := DecodeSignalingCommand(short); err == nil {
			t.Errorf("DecodeSignalingCommand(% X) succeeded", short)
		}
	}
}

func TestAnswerSignaling(t *testing.T) {
	tests := []struct {
		name string
		cmd  SignalingCommand
		want []byte // nil means no reply
	}{
		{
			name: "parameter update rejected",
			cmd:  SignalingCommand{Code: CodeConnectionParameterUpdateRequest, Identifier: 3, Data: make([]byte, 8)},
			want: []byte{0x13, 0x03, 0x02, 0x00, 0x01, 0x00},
		},
		{
			name: "unknown command rejected",
			cmd:  SignalingCommand{Code: 0x14, Identifier: 9, Data: make([]byte, 10)},
			want: []byte{0x01, 0x09, 0x02, 0x00, 0x00, 0x00},
		},
		{
			name: "command reject ignored",
			cmd:  SignalingCommand{Code: CodeCommandReject, Identifier: 1, Data: []byte{0x00, 0x00}},
		},
		{
			name: "update response ignored",
			cmd:  SignalingCommand{Code: CodeConnectionParameterUpdateResponse, Identifier: 1, Data: []byte{0x00, 0x00}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsp := answerSignaling(&tt.cmd)
			if tt.want == nil {
				if rsp != nil {
					t.Errorf("answer = % X, want none", rsp.Encode())
				}
				return
			}
			if rsp == nil {
				t.Fatal("no answer")
			}
			if !bytes.Equal(rsp.Encode(), tt.want) {
				t.Errorf("answer = % X, want % X", rsp.Encode(), tt.want)
			}
		})
	}
}
