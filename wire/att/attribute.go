package att

import "iter"

// Permissions are server-side access flags. They are never sent over the air.
type Permissions uint8

// Attribute permissions
const (
	PermReadable     Permissions = 0x01
	PermWritable     Permissions = 0x02
	PermReadEncrypt  Permissions = 0x04
	PermWriteEncrypt Permissions = 0x08
)

// Readable reports whether the attribute may be read.
func (p Permissions) Readable() bool { return p&PermReadable != 0 }

// Writable reports whether the attribute may be written.
func (p Permissions) Writable() bool { return p&PermWritable != 0 }

// Attribute is one entry of an attribute set.
type Attribute struct {
	Handle      Handle
	Type        UUID
	Value       []byte
	Permissions Permissions
}

// AccessContext describes the request on whose behalf a provider is read
// or written.
type AccessContext struct {
	Opcode    uint8  // request opcode
	Offset    uint16 // Read Blob / Prepare Write offset
	Encrypted bool   // link is encrypted
}

// AttributeProvider is the attribute set a Server exposes.
//
// Find must yield attributes in strictly ascending handle order; responses
// that pack several attributes rely on it. Implementations own the
// synchronization of their storage: the server calls them from its receive
// loop while the application may update values from other goroutines.
type AttributeProvider interface {
	// Get returns the attribute with handle h.
	Get(h Handle) (Attribute, bool)

	// Find yields the attributes in r, optionally restricted to those
	// whose type equals typ. Each call starts a fresh enumeration.
	Find(r HandleRange, typ *UUID) iter.Seq[Attribute]

	// Read returns the value of h. It fails with ErrInvalidHandle if h
	// does not exist and ErrNotPermitted if it may not be read.
	Read(h Handle, ctx AccessContext) ([]byte, error)

	// Write replaces the value of h. It fails with ErrInvalidHandle,
	// ErrNotPermitted or ErrInvalidAttributeValueLength.
	Write(h Handle, value []byte, ctx AccessContext) error
}

// GroupProvider is implemented by attribute sets that group attributes
// (for example under service declarations). It enables Read By Group Type
// and the group end handles of Find By Type Value.
type GroupProvider interface {
	IsGroupingType(typ UUID) bool

	// GroupEnd returns the last handle of the group opened by h.
	GroupEnd(h Handle) (Handle, bool)
}

// NoAttributes is an attribute set without attributes.
type NoAttributes struct{}

var _ AttributeProvider = NoAttributes{}

func (NoAttributes) Get(Handle) (Attribute, bool) { return Attribute{}, false }

func (NoAttributes) Find(HandleRange, *UUID) iter.Seq[Attribute] { return noAttributes }

func (NoAttributes) Read(Handle, AccessContext) ([]byte, error) { return nil, ErrInvalidHandle }

func (NoAttributes) Write(Handle, []byte, AccessContext) error { return ErrInvalidHandle }

func noAttributes(func(Attribute) bool) {}
