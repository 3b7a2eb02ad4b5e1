package gatt

import (
	"github.com/pkg/errors"

	"github.com/user/blue-att/wire/att"
)

// Service represents a high-level GATT service definition
type Service struct {
	UUID            att.UUID
	Primary         bool             // true = primary service, false = secondary
	Characteristics []Characteristic // List of characteristics in this service
}

// Characteristic represents a high-level GATT characteristic definition
type Characteristic struct {
	UUID        att.UUID
	Properties  uint8        // Characteristic properties (read, write, notify, etc.)
	Value       []byte       // Initial value
	MaxLength   int          // Longest value a peer may write; 0 means MaxValueLength
	Descriptors []Descriptor // Optional descriptors
}

// Descriptor represents a GATT descriptor
type Descriptor struct {
	UUID  att.UUID
	Value []byte
}

// ServiceHandleInfo stores the handle ranges for a built service
type ServiceHandleInfo struct {
	ServiceHandle att.Handle            // Handle of the service declaration
	EndHandle     att.Handle            // Last handle in the service
	CharHandles   map[string]att.Handle // canonical UUID -> characteristic value handle
}

// BuildAttributeDatabase converts high-level service definitions into an attribute database
func BuildAttributeDatabase(services []Service) (*AttributeDatabase, []*ServiceHandleInfo) {
	db := NewAttributeDatabase()
	infos := make([]*ServiceHandleInfo, 0, len(services))
	for _, service := range services {
		infos = append(infos, buildService(db, service))
	}
	return db, infos
}

// buildService adds a single service and its characteristics to the database
func buildService(db *AttributeDatabase, service Service) *ServiceHandleInfo {
	info := &ServiceHandleInfo{
		CharHandles: make(map[string]att.Handle),
	}

	serviceType := UUIDSecondaryService
	if service.Primary {
		serviceType = UUIDPrimaryService
	}
	info.ServiceHandle = db.AddAttribute(serviceType, service.UUID.Bytes(), att.PermReadable)

	for _, char := range service.Characteristics {
		info.CharHandles[uuidKey(char.UUID)] = buildCharacteristic(db, char)
	}

	info.EndHandle = db.nextHandle() - 1
	return info
}

// buildCharacteristic adds a characteristic and its descriptors to the
// database and returns the value handle.
func buildCharacteristic(db *AttributeDatabase, char Characteristic) att.Handle {
	// Format: [Properties: 1 byte][Value Handle: 2 bytes][UUID: 2 or 16 bytes]
	valueHandle := db.nextHandle() + 1
	declValue := append([]byte{char.Properties}, valueHandle.Bytes()...)
	declValue = append(declValue, char.UUID.Bytes()...)
	db.AddAttribute(UUIDCharacteristic, declValue, att.PermReadable)

	db.AddAttribute(char.UUID, char.Value, determinePermissions(char.Properties))
	if char.MaxLength > 0 {
		db.SetMaxLength(valueHandle, char.MaxLength)
	}

	hasCCCD := false
	for _, desc := range char.Descriptors {
		h := db.AddAttribute(desc.UUID, desc.Value, att.PermReadable|att.PermWritable)
		if desc.UUID.Equal(UUIDClientCharacteristicConfig) {
			db.markCCCD(h, valueHandle)
			hasCCCD = true
		}
	}

	// Notify and indicate need a CCCD; notifications/indications start disabled
	if !hasCCCD && char.Properties&(PropNotify|PropIndicate) != 0 {
		h := db.AddAttribute(UUIDClientCharacteristicConfig, []byte{0x00, 0x00}, att.PermReadable|att.PermWritable)
		db.markCCCD(h, valueHandle)
	}

	return valueHandle
}

// determinePermissions converts characteristic properties to attribute permissions
func determinePermissions(properties uint8) att.Permissions {
	var perms att.Permissions
	if properties&PropRead != 0 {
		perms |= att.PermReadable
	}
	if properties&(PropWrite|PropWriteWithoutResponse) != 0 {
		perms |= att.PermWritable
	}
	return perms
}

// uuidKey is the width-independent map key of u.
func uuidKey(u att.UUID) string {
	return u.UUID().String()
}

// NewGenericAccessService creates the mandatory Generic Access service (0x1800)
func NewGenericAccessService(deviceName string, appearance uint16) Service {
	return Service{
		UUID:    att.UUID16(0x1800),
		Primary: true,
		Characteristics: []Characteristic{
			{
				UUID:       att.UUID16(0x2A00), // Device Name
				Properties: PropRead,
				Value:      []byte(deviceName),
			},
			{
				UUID:       att.UUID16(0x2A01), // Appearance
				Properties: PropRead,
				Value:      []byte{byte(appearance), byte(appearance >> 8)},
			},
		},
	}
}

// Battery Service and Battery Level characteristic
var (
	UUIDBatteryService = att.UUID16(0x180F)
	UUIDBatteryLevel   = att.UUID16(0x2A19)
)

// NewBatteryService creates a Battery Service (0x180F) whose Battery Level
// characteristic can be read and notified.
func NewBatteryService(level uint8) Service {
	return Service{
		UUID:    UUIDBatteryService,
		Primary: true,
		Characteristics: []Characteristic{
			{
				UUID:       UUIDBatteryLevel,
				Properties: PropRead | PropNotify,
				Value:      []byte{level},
				MaxLength:  1,
			},
		},
	}
}

// FindCharacteristicHandle finds the value handle for a characteristic UUID in a service
func FindCharacteristicHandle(info *ServiceHandleInfo, charUUID att.UUID) (att.Handle, error) {
	handle, ok := info.CharHandles[uuidKey(charUUID)]
	if !ok {
		return att.NullHandle, errors.Errorf("gatt: characteristic %s not found in service", charUUID)
	}
	return handle, nil
}
