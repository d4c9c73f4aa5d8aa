package params

// Kind tags the single typed payload a Value carries.
type Kind int

const (
	KindBlob Kind = iota
	KindDouble
	KindString
	KindNull
)

func (k Kind) String() string {
	switch k {
	case KindBlob:
		return "blob"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindNull:
		return "null"
	}
	return "unknown"
}

// Value is a typed parameter payload. Only the member matching Kind is meaningful.
type Value struct {
	Kind   Kind
	Blob   []byte
	Double float64
	String string
}

// Field is one named parameter of a statement. Field order must match the
// placeholder order of the target statement.
type Field struct {
	Name  string
	Value Value
}

func (v Value) IsNull() bool {
	return v.Kind == KindNull
}

func BlobValue(b []byte) Value {
	return Value{Kind: KindBlob, Blob: b}
}

func DoubleValue(f float64) Value {
	return Value{Kind: KindDouble, Double: f}
}

func StringValue(s string) Value {
	return Value{Kind: KindString, String: s}
}

func NullValue() Value {
	return Value{Kind: KindNull}
}

// hexField builds a blob field from a hex-encoded identifier.
func hexField(name, id string) Field {
	return Field{Name: name, Value: BlobValue(DecodeHex(id))}
}

// DecodeHex decodes pairs of hex digits left to right. Decoding stops at the
// first pair containing a non-hex character, and a trailing odd nibble is dropped.
func DecodeHex(s string) []byte {
	out := make([]byte, 0, len(s)/2)
	for i := 0; i+1 < len(s); i += 2 {
		hi, ok1 := fromHexChar(s[i])
		lo, ok2 := fromHexChar(s[i+1])
		if !ok1 || !ok2 {
			break
		}
		out = append(out, hi<<4|lo)
	}
	return out
}

func fromHexChar(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
