package gatt

import (
	"iter"
	"sync"

	"github.com/pkg/errors"

	"github.com/user/blue-att/wire/att"
)

// Well-known GATT UUIDs
var (
	// Service UUIDs
	UUIDPrimaryService   = att.PrimaryServiceUUID   // 0x2800
	UUIDSecondaryService = att.SecondaryServiceUUID // 0x2801
	UUIDInclude          = att.UUID16(0x2802)
	UUIDCharacteristic   = att.UUID16(0x2803)

	// Descriptor UUIDs
	UUIDCharExtProps               = att.UUID16(0x2900)
	UUIDCharUserDescription        = att.UUID16(0x2901)
	UUIDClientCharacteristicConfig = att.UUID16(0x2902) // CCCD
	UUIDCharPresentationFormat     = att.UUID16(0x2904)
)

// Characteristic Properties (bitmask)
const (
	PropBroadcast                 = 0x01
	PropRead                      = 0x02
	PropWriteWithoutResponse      = 0x04
	PropWrite                     = 0x08
	PropNotify                    = 0x10
	PropIndicate                  = 0x20
	PropAuthenticatedSignedWrites = 0x40
	PropExtendedProperties        = 0x80
)

// MaxValueLength is the longest attribute value ATT allows.
const MaxValueLength = 512

// WriteHandler observes a value after a peer wrote it.
type WriteHandler func(h att.Handle, value []byte)

// entry is one stored attribute.
type entry struct {
	attr    att.Attribute
	maxLen  int
	onWrite WriteHandler
}

// AttributeDatabase is an attribute table with handles assigned in order
// from 0x0001. It implements att.AttributeProvider and att.GroupProvider
// and is safe for concurrent use, so one database can back many
// connections.
type AttributeDatabase struct {
	mu      sync.RWMutex
	entries []*entry // entries[i] has handle i+1

	// CCCD handle -> value handle of the characteristic it configures
	cccdOwner map[att.Handle]att.Handle
}

var (
	_ att.AttributeProvider = (*AttributeDatabase)(nil)
	_ att.GroupProvider     = (*AttributeDatabase)(nil)
)

// NewAttributeDatabase creates an empty attribute database
func NewAttributeDatabase() *AttributeDatabase {
	return &AttributeDatabase{
		cccdOwner: make(map[att.Handle]att.Handle),
	}
}

// AddAttribute adds an attribute and assigns it the next handle
func (db *AttributeDatabase) AddAttribute(typ att.UUID, value []byte, perms att.Permissions) att.Handle {
	db.mu.Lock()
	defer db.mu.Unlock()

	h := att.Handle(len(db.entries) + 1)
	db.entries = append(db.entries, &entry{
		attr: att.Attribute{
			Handle:      h,
			Type:        typ,
			Value:       append([]byte{}, value...),
			Permissions: perms,
		},
		maxLen: MaxValueLength,
	})
	return h
}

// nextHandle returns the handle the next AddAttribute will assign.
func (db *AttributeDatabase) nextHandle() att.Handle {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return att.Handle(len(db.entries) + 1)
}

func (db *AttributeDatabase) lookup(h att.Handle) *entry {
	if h == att.NullHandle || int(h) > len(db.entries) {
		return nil
	}
	return db.entries[h-1]
}

// SetMaxLength limits the length of values peers may write to h.
func (db *AttributeDatabase) SetMaxLength(h att.Handle, n int) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	e := db.lookup(h)
	if e == nil {
		return errors.Wrapf(att.ErrInvalidHandle, "set max length of %s", h)
	}
	e.maxLen = n
	return nil
}

// OnWrite registers fn to run after every successful peer write to h.
func (db *AttributeDatabase) OnWrite(h att.Handle, fn WriteHandler) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	e := db.lookup(h)
	if e == nil {
		return errors.Wrapf(att.ErrInvalidHandle, "register write handler on %s", h)
	}
	e.onWrite = fn
	return nil
}

// Get returns a copy of the attribute with handle h.
func (db *AttributeDatabase) Get(h att.Handle) (att.Attribute, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	e := db.lookup(h)
	if e == nil {
		return att.Attribute{}, false
	}
	return copyAttribute(e.attr), true
}

// Find yields the attributes in r, filtered by typ when it is not nil.
// The table is locked per attribute, never across a yield.
func (db *AttributeDatabase) Find(r att.HandleRange, typ *att.UUID) iter.Seq[att.Attribute] {
	return func(yield func(att.Attribute) bool) {
		for h := r.Start(); ; h++ {
			a, ok := db.Get(h)
			if !ok {
				return
			}
			if typ == nil || a.Type.Equal(*typ) {
				if !yield(a) {
					return
				}
			}
			if h == r.End() {
				return
			}
		}
	}
}

// Read returns the value of h on behalf of a peer.
func (db *AttributeDatabase) Read(h att.Handle, ctx att.AccessContext) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	e := db.lookup(h)
	if e == nil {
		return nil, att.ErrInvalidHandle
	}
	if !e.attr.Permissions.Readable() {
		return nil, att.ErrNotPermitted
	}
	if e.attr.Permissions&att.PermReadEncrypt != 0 && !ctx.Encrypted {
		return nil, att.ErrInsufficientEncryption
	}
	return append([]byte{}, e.attr.Value...), nil
}

// Write stores a value written by a peer. A non-zero ctx.Offset keeps the
// first Offset bytes of the current value.
func (db *AttributeDatabase) Write(h att.Handle, value []byte, ctx att.AccessContext) error {
	db.mu.Lock()

	e := db.lookup(h)
	if e == nil {
		db.mu.Unlock()
		return att.ErrInvalidHandle
	}
	if err := checkWrite(e.attr, ctx); err != nil {
		db.mu.Unlock()
		return err
	}
	current := e.attr.Value
	if int(ctx.Offset) > len(current) {
		db.mu.Unlock()
		return att.ErrInvalidOffset
	}
	next := append(append([]byte{}, current[:ctx.Offset]...), value...)
	if len(next) > e.maxLen {
		db.mu.Unlock()
		return att.ErrInvalidAttributeValueLength
	}
	e.attr.Value = next
	fn := e.onWrite
	db.mu.Unlock()

	if fn != nil {
		fn(h, append([]byte{}, next...))
	}
	return nil
}

func checkWrite(a att.Attribute, ctx att.AccessContext) error {
	if !a.Permissions.Writable() {
		return att.ErrNotPermitted
	}
	if a.Permissions&att.PermWriteEncrypt != 0 && !ctx.Encrypted {
		return att.ErrInsufficientEncryption
	}
	return nil
}

// SetValue replaces the value of h on behalf of the application. It
// ignores permissions and does not run write handlers.
func (db *AttributeDatabase) SetValue(h att.Handle, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	e := db.lookup(h)
	if e == nil {
		return errors.Wrapf(att.ErrInvalidHandle, "set value of %s", h)
	}
	e.attr.Value = append([]byte{}, value...)
	return nil
}

// IsGroupingType reports whether typ is a service declaration.
func (db *AttributeDatabase) IsGroupingType(typ att.UUID) bool {
	return typ.Equal(UUIDPrimaryService) || typ.Equal(UUIDSecondaryService)
}

// GroupEnd returns the last handle of the service declared at h: the
// handle before the next service declaration, or the last handle.
func (db *AttributeDatabase) GroupEnd(h att.Handle) (att.Handle, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	e := db.lookup(h)
	if e == nil || !db.IsGroupingType(e.attr.Type) {
		return att.NullHandle, false
	}
	for i := int(h); i < len(db.entries); i++ {
		if db.IsGroupingType(db.entries[i].attr.Type) {
			return att.Handle(i), true
		}
	}
	return att.Handle(len(db.entries)), true
}

// Count returns the number of attributes in the database
func (db *AttributeDatabase) Count() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.entries)
}

// markCCCD records that the descriptor at cccd configures value.
func (db *AttributeDatabase) markCCCD(cccd, value att.Handle) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.cccdOwner[cccd] = value
}

// cccdTarget returns the characteristic value handle configured by the
// CCCD at h.
func (db *AttributeDatabase) cccdTarget(h att.Handle) (att.Handle, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	v, ok := db.cccdOwner[h]
	return v, ok
}

func copyAttribute(a att.Attribute) att.Attribute {
	a.Value = append([]byte{}, a.Value...)
	return a
}
