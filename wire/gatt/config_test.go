package gatt

import (
	"bytes"
	"strings"
	"testing"

	"github.com/user/blue-att/wire/att"
)

const testServiceTable = `
services:
  - uuid: "1800"
    characteristics:
      - uuid: "2A00"
        properties: [read]
        string: "blue-att"
  - uuid: "180F"
    characteristics:
      - uuid: "2a19"
        properties: [read, notify]
        value: "64"
        max_length: 1
        descriptors:
          - uuid: "2901"
            string: "Battery"
  - uuid: "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
    secondary: true
    characteristics:
      - uuid: "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
        properties: [write, Write-Without-Response]
        value: "01 02 03"
`

func TestLoadDatabase(t *testing.T) {
	db, infos, err := LoadDatabase(strings.NewReader(testServiceTable))
	if err != nil {
		t.Fatalf("LoadDatabase failed: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("got %d services, want 3", len(infos))
	}

	name, err := FindCharacteristicHandle(infos[0], att.UUID16(0x2A00))
	if err != nil {
		t.Fatalf("device name: %v", err)
	}
	if v, _ := db.Read(name, att.AccessContext{}); string(v) != "blue-att" {
		t.Errorf("device name = %q", v)
	}

	level, _ := FindCharacteristicHandle(infos[1], UUIDBatteryLevel)
	if v, _ := db.Read(level, att.AccessContext{}); !bytes.Equal(v, []byte{0x64}) {
		t.Errorf("battery level = % X, want 64", v)
	}
	// Service, declaration, value, description, CCCD
	if infos[1].EndHandle-infos[1].ServiceHandle != 4 {
		t.Errorf("battery service spans %s-%s", infos[1].ServiceHandle, infos[1].EndHandle)
	}

	svc, _ := db.Get(infos[2].ServiceHandle)
	if !svc.Type.Equal(UUIDSecondaryService) {
		t.Errorf("third service type = %s, want secondary", svc.Type)
	}
	rx, _ := FindCharacteristicHandle(infos[2], att.MustParseUUID("6e400002-b5a3-f393-e0a9-e50e24dcca9e"))
	rxAttr, _ := db.Get(rx)
	if !bytes.Equal(rxAttr.Value, []byte{1, 2, 3}) {
		t.Errorf("rx value = % X", rxAttr.Value)
	}
	if !rxAttr.Permissions.Writable() || rxAttr.Permissions.Readable() {
		t.Errorf("rx permissions = 0x%02X", rxAttr.Permissions)
	}
}

func TestLoadServicesErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"bad yaml", "services: [\n"},
		{"bad service uuid", "services:\n  - uuid: \"18\"\n"},
		{"bad characteristic uuid", "services:\n  - uuid: \"1800\"\n    characteristics:\n      - uuid: \"zz\"\n"},
		{"unknown property", "services:\n  - uuid: \"1800\"\n    characteristics:\n      - uuid: \"2A00\"\n        properties: [fly]\n"},
		{"bad hex", "services:\n  - uuid: \"1800\"\n    characteristics:\n      - uuid: \"2A00\"\n        value: \"0g\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadServices(strings.NewReader(tt.input)); err == nil {
				t.Error("LoadServices succeeded")
			}
		})
	}
}
