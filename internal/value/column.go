package value

// DataType names the declared type of a column, independent of any
// particular EntryValue instance (a column's declared type constrains
// which Kind its values may take).
type DataType int

const (
	TypeInteger DataType = iota
	TypeStr
	TypeBool
	TypeID
	TypeDecimal
	TypeArray
	TypeMap
	TypeFloat
)

// Indexable reports whether a DataType can ever back a B+-tree index.
// Map and Float never can.
func (t DataType) Indexable() bool {
	switch t {
	case TypeMap, TypeFloat:
		return false
	default:
		return true
	}
}

func (t DataType) String() string {
	switch t {
	case TypeInteger:
		return "Integer"
	case TypeStr:
		return "Str"
	case TypeBool:
		return "Bool"
	case TypeID:
		return "ID"
	case TypeDecimal:
		return "Decimal"
	case TypeArray:
		return "Array"
	case TypeMap:
		return "Map"
	case TypeFloat:
		return "Float"
	default:
		return "Unknown"
	}
}

// Column describes one table column: its declared type, whether it is
// indexed, and (once an index file is open) its position among the
// table's index files.
type Column struct {
	Name     string
	DataType DataType
	Indexed  bool
	IndexLoc int
}

// NewColumn returns a Column with Indexed derived from DataType.
func NewColumn(name string, dt DataType) Column {
	return Column{Name: name, DataType: dt, Indexed: dt.Indexable()}
}
