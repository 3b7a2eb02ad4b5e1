package gatt

import (
	"encoding/binary"
	"iter"
	"sync"

	"github.com/user/blue-att/wire/att"
)

// CCCD (Client Characteristic Configuration Descriptor) values
// These are written by clients to enable/disable notifications and indications
const (
	CCCDNotificationsDisabled = 0x0000
	CCCDNotificationsEnabled  = 0x0001
	CCCDIndicationsEnabled    = 0x0002
)

// CCCDManager holds one connection's CCCD values, keyed by the value handle
// of the characteristic each CCCD configures. CCCD state is never shared
// across connections.
type CCCDManager struct {
	mu            sync.RWMutex
	subscriptions map[att.Handle]uint16
}

// NewCCCDManager creates a new CCCD manager for a connection
func NewCCCDManager() *CCCDManager {
	return &CCCDManager{
		subscriptions: make(map[att.Handle]uint16),
	}
}

// SetSubscription stores the 2-byte little-endian CCCD value a client wrote
// for the characteristic at charHandle.
func (cm *CCCDManager) SetSubscription(charHandle att.Handle, cccdValue []byte) error {
	if len(cccdValue) != 2 {
		return att.ErrInvalidAttributeValueLength
	}
	value := binary.LittleEndian.Uint16(cccdValue) & (CCCDNotificationsEnabled | CCCDIndicationsEnabled)

	cm.mu.Lock()
	defer cm.mu.Unlock()
	if value == CCCDNotificationsDisabled {
		delete(cm.subscriptions, charHandle)
		return nil
	}
	cm.subscriptions[charHandle] = value
	return nil
}

// Value returns the CCCD value for charHandle as stored on the wire.
func (cm *CCCDManager) Value(charHandle att.Handle) []byte {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, cm.subscriptions[charHandle])
	return b
}

// IsNotifyEnabled returns true if notifications are enabled for a characteristic
func (cm *CCCDManager) IsNotifyEnabled(charHandle att.Handle) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.subscriptions[charHandle]&CCCDNotificationsEnabled != 0
}

// IsIndicateEnabled returns true if indications are enabled for a characteristic
func (cm *CCCDManager) IsIndicateEnabled(charHandle att.Handle) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.subscriptions[charHandle]&CCCDIndicationsEnabled != 0
}

// Clear removes all subscriptions (on disconnect)
func (cm *CCCDManager) Clear() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.subscriptions = make(map[att.Handle]uint16)
}

// Session is one connection's view of a shared AttributeDatabase. CCCD
// reads and writes go to the session's own CCCDManager; everything else
// goes to the database.
type Session struct {
	db   *AttributeDatabase
	subs *CCCDManager
}

var (
	_ att.AttributeProvider = (*Session)(nil)
	_ att.GroupProvider     = (*Session)(nil)
)

// NewSession returns a connection view of db with all CCCDs cleared.
func (db *AttributeDatabase) NewSession() *Session {
	return &Session{db: db, subs: NewCCCDManager()}
}

// Subscriptions returns the session's CCCD state.
func (s *Session) Subscriptions() *CCCDManager {
	return s.subs
}

func (s *Session) overlay(a att.Attribute) att.Attribute {
	if target, ok := s.db.cccdTarget(a.Handle); ok {
		a.Value = s.subs.Value(target)
	}
	return a
}

func (s *Session) Get(h att.Handle) (att.Attribute, bool) {
	a, ok := s.db.Get(h)
	if !ok {
		return a, false
	}
	return s.overlay(a), true
}

func (s *Session) Find(r att.HandleRange, typ *att.UUID) iter.Seq[att.Attribute] {
	return func(yield func(att.Attribute) bool) {
		for a := range s.db.Find(r, typ) {
			if !yield(s.overlay(a)) {
				return
			}
		}
	}
}

func (s *Session) Read(h att.Handle, ctx att.AccessContext) ([]byte, error) {
	value, err := s.db.Read(h, ctx)
	if err != nil {
		return nil, err
	}
	if target, ok := s.db.cccdTarget(h); ok {
		return s.subs.Value(target), nil
	}
	return value, nil
}

func (s *Session) Write(h att.Handle, value []byte, ctx att.AccessContext) error {
	target, ok := s.db.cccdTarget(h)
	if !ok {
		return s.db.Write(h, value, ctx)
	}
	a, _ := s.db.Get(h)
	if err := checkWrite(a, ctx); err != nil {
		return err
	}
	if ctx.Offset != 0 {
		return att.ErrInvalidOffset
	}
	return s.subs.SetSubscription(target, value)
}

func (s *Session) IsGroupingType(typ att.UUID) bool { return s.db.IsGroupingType(typ) }

func (s *Session) GroupEnd(h att.Handle) (att.Handle, bool) { return s.db.GroupEnd(h) }
