// Package schema defines the fixed 18-field flow record consumed by the
// fitted preprocessor, and the mapping between request keys and the column
// names the preprocessor was fitted on.
package schema

import "golang.org/x/text/unicode/norm"

// Kind is the declared type of a record field.
type Kind int

const (
	Categorical Kind = iota
	Integer
	Float
)

func (k Kind) String() string {
	switch k {
	case Categorical:
		return "categorical"
	case Integer:
		return "int"
	case Float:
		return "float"
	default:
		return "unknown"
	}
}

// Field describes one record column.
type Field struct {
	Column string // name in the reference dataset
	Key    string // name in request payloads and captured_features
	Kind   Kind
}

// NumFields is the number of columns in a Record.
const NumFields = 18

const (
	ProtocolColumn = "Protocol"
	FlagsColumn    = "Flags"
)

// Fields lists the record columns in fit-time order. The dataset spells the
// two rate columns with a "/s" suffix; requests use "_s". This table is the
// only place that renaming happens.
var Fields = [NumFields]Field{
	{Column: "Protocol", Key: "Protocol", Kind: Categorical},
	{Column: "Packet_Length", Key: "Packet_Length", Kind: Float},
	{Column: "Duration", Key: "Duration", Kind: Float},
	{Column: "Source_Port", Key: "Source_Port", Kind: Integer},
	{Column: "Destination_Port", Key: "Destination_Port", Kind: Integer},
	{Column: "Bytes_Sent", Key: "Bytes_Sent", Kind: Float},
	{Column: "Bytes_Received", Key: "Bytes_Received", Kind: Float},
	{Column: "Flags", Key: "Flags", Kind: Categorical},
	{Column: "Flow_Packets/s", Key: "Flow_Packets_s", Kind: Float},
	{Column: "Flow_Bytes/s", Key: "Flow_Bytes_s", Kind: Float},
	{Column: "Avg_Packet_Size", Key: "Avg_Packet_Size", Kind: Float},
	{Column: "Total_Fwd_Packets", Key: "Total_Fwd_Packets", Kind: Integer},
	{Column: "Total_Bwd_Packets", Key: "Total_Bwd_Packets", Kind: Integer},
	{Column: "Fwd_Header_Length", Key: "Fwd_Header_Length", Kind: Integer},
	{Column: "Bwd_Header_Length", Key: "Bwd_Header_Length", Kind: Integer},
	{Column: "Sub_Flow_Fwd_Bytes", Key: "Sub_Flow_Fwd_Bytes", Kind: Float},
	{Column: "Sub_Flow_Bwd_Bytes", Key: "Sub_Flow_Bwd_Bytes", Kind: Float},
	{Column: "Inbound", Key: "Inbound", Kind: Integer},
}

var (
	columnIndex = make(map[string]int, NumFields)
	keyIndex    = make(map[string]int, NumFields)
)

func init() {
	for i, f := range Fields {
		columnIndex[f.Column] = i
		keyIndex[f.Key] = i
	}
}

// Columns returns the dataset column names in record order.
func Columns() []string {
	cols := make([]string, NumFields)
	for i, f := range Fields {
		cols[i] = f.Column
	}
	return cols
}

// ColumnIndex returns the position of a dataset column name.
func ColumnIndex(column string) (int, bool) {
	i, ok := columnIndex[column]
	return i, ok
}

// KeyIndex returns the position of a request key.
func KeyIndex(key string) (int, bool) {
	i, ok := keyIndex[key]
	return i, ok
}

// ColumnForKey maps a request key to its dataset column name.
func ColumnForKey(key string) (string, bool) {
	i, ok := keyIndex[key]
	if !ok {
		return "", false
	}
	return Fields[i].Column, true
}

// KeyForColumn maps a dataset column name to its request key.
func KeyForColumn(column string) (string, bool) {
	i, ok := columnIndex[column]
	if !ok {
		return "", false
	}
	return Fields[i].Key, true
}

// Canonical normalizes a categorical value to NFC so that visually identical
// values from requests and the dataset compare equal.
func Canonical(s string) string {
	return norm.NFC.String(s)
}
