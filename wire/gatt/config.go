package gatt

import (
	"encoding/hex"
	"io"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/user/blue-att/wire/att"
)

// serviceTable is the YAML layout of a service table:
//
//	services:
//	  - uuid: "180F"
//	    characteristics:
//	      - uuid: "2A19"
//	        properties: [read, notify]
//	        value: "64"
type serviceTable struct {
	Services []serviceConfig `yaml:"services"`
}

type serviceConfig struct {
	UUID            string                 `yaml:"uuid"`
	Secondary       bool                   `yaml:"secondary"`
	Characteristics []characteristicConfig `yaml:"characteristics"`
}

type characteristicConfig struct {
	UUID        string             `yaml:"uuid"`
	Properties  []string           `yaml:"properties"`
	Value       string             `yaml:"value"`  // hex
	String      string             `yaml:"string"` // text, used when value is empty
	MaxLength   int                `yaml:"max_length"`
	Descriptors []descriptorConfig `yaml:"descriptors"`
}

type descriptorConfig struct {
	UUID   string `yaml:"uuid"`
	Value  string `yaml:"value"`
	String string `yaml:"string"`
}

var propertyNames = map[string]uint8{
	"broadcast":              PropBroadcast,
	"read":                   PropRead,
	"write-without-response": PropWriteWithoutResponse,
	"write":                  PropWrite,
	"notify":                 PropNotify,
	"indicate":               PropIndicate,
	"signed-write":           PropAuthenticatedSignedWrites,
	"extended-properties":    PropExtendedProperties,
}

// LoadServices parses a YAML service table.
func LoadServices(r io.Reader) ([]Service, error) {
	var table serviceTable
	if err := yaml.NewDecoder(r).Decode(&table); err != nil {
		return nil, errors.Wrap(err, "gatt: decode service table")
	}

	services := make([]Service, 0, len(table.Services))
	for i, sc := range table.Services {
		svc, err := sc.service()
		if err != nil {
			return nil, errors.Wrapf(err, "gatt: service %d", i)
		}
		services = append(services, svc)
	}
	return services, nil
}

// LoadDatabase parses a YAML service table and builds its attribute database.
func LoadDatabase(r io.Reader) (*AttributeDatabase, []*ServiceHandleInfo, error) {
	services, err := LoadServices(r)
	if err != nil {
		return nil, nil, err
	}
	db, infos := BuildAttributeDatabase(services)
	return db, infos, nil
}

func (sc serviceConfig) service() (Service, error) {
	u, err := att.ParseUUID(sc.UUID)
	if err != nil {
		return Service{}, err
	}
	svc := Service{UUID: u, Primary: !sc.Secondary}
	for _, cc := range sc.Characteristics {
		char, err := cc.characteristic()
		if err != nil {
			return Service{}, errors.Wrapf(err, "characteristic %s", cc.UUID)
		}
		svc.Characteristics = append(svc.Characteristics, char)
	}
	return svc, nil
}

func (cc characteristicConfig) characteristic() (Characteristic, error) {
	u, err := att.ParseUUID(cc.UUID)
	if err != nil {
		return Characteristic{}, err
	}
	value, err := parseValue(cc.Value, cc.String)
	if err != nil {
		return Characteristic{}, err
	}
	char := Characteristic{UUID: u, Value: value, MaxLength: cc.MaxLength}
	for _, name := range cc.Properties {
		p, ok := propertyNames[strings.ToLower(name)]
		if !ok {
			return Characteristic{}, errors.Errorf("unknown property %q", name)
		}
		char.Properties |= p
	}
	for _, dc := range cc.Descriptors {
		du, err := att.ParseUUID(dc.UUID)
		if err != nil {
			return Characteristic{}, err
		}
		dv, err := parseValue(dc.Value, dc.String)
		if err != nil {
			return Characteristic{}, err
		}
		char.Descriptors = append(char.Descriptors, Descriptor{UUID: du, Value: dv})
	}
	return char, nil
}

func parseValue(hexValue, text string) ([]byte, error) {
	if hexValue == "" {
		return []byte(text), nil
	}
	b, err := hex.DecodeString(strings.ReplaceAll(hexValue, " ", ""))
	if err != nil {
		return nil, errors.Wrapf(err, "value %q", hexValue)
	}
	return b, nil
}
