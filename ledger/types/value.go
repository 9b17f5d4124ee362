package types

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"go.dedis.ch/ballot/serde"
	"golang.org/x/xerrors"
)

// Kind is the type of a contract value.
type Kind uint8

const (
	// KindVoid is the kind of the empty value.
	KindVoid Kind = iota
	// KindBool is the kind of a boolean.
	KindBool
	// KindU32 is the kind of an unsigned 32-bit integer.
	KindU32
	// KindSymbol is the kind of a short identifier.
	KindSymbol
	// KindAddress is the kind of an account address.
	KindAddress
	// KindVec is the kind of a list of values.
	KindVec
)

var kindNames = map[Kind]string{
	KindVoid:    "void",
	KindBool:    "bool",
	KindU32:     "u32",
	KindSymbol:  "symbol",
	KindAddress: "address",
	KindVec:     "vec",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	name, found := kindNames[k]
	if !found {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}

	return name
}

// KindOf returns the kind of the name, or false if it is unknown.
func KindOf(name string) (Kind, bool) {
	for kind, n := range kindNames {
		if n == name {
			return kind, true
		}
	}

	return KindVoid, false
}

// Value is an argument or a result of a contract function.
//
// - implements serde.Message
// - implements serde.Fingerprinter
type Value struct {
	kind  Kind
	flag  bool
	num   uint32
	text  string
	items []Value
}

// Void returns the empty value.
func Void() Value {
	return Value{kind: KindVoid}
}

// Bool returns a boolean value.
func Bool(b bool) Value {
	return Value{kind: KindBool, flag: b}
}

// U32 returns an unsigned integer value.
func U32(n uint32) Value {
	return Value{kind: KindU32, num: n}
}

// Symbol returns a symbol value.
func Symbol(s string) Value {
	return Value{kind: KindSymbol, text: s}
}

// Address returns an account address value.
func Address(addr string) Value {
	return Value{kind: KindAddress, text: addr}
}

// Vec returns a list of values.
func Vec(items ...Value) Value {
	return Value{kind: KindVec, items: items}
}

// Kind returns the kind of the value.
func (v Value) Kind() Kind {
	return v.kind
}

// AsBool returns the boolean of the value, or an error if it is not a boolean.
func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, xerrors.Errorf("expected bool but got %v", v.kind)
	}

	return v.flag, nil
}

// AsU32 returns the integer of the value, or an error if it is not an integer.
func (v Value) AsU32() (uint32, error) {
	if v.kind != KindU32 {
		return 0, xerrors.Errorf("expected u32 but got %v", v.kind)
	}

	return v.num, nil
}

// AsSymbol returns the symbol of the value, or an error if it is not a symbol.
func (v Value) AsSymbol() (string, error) {
	if v.kind != KindSymbol {
		return "", xerrors.Errorf("expected symbol but got %v", v.kind)
	}

	return v.text, nil
}

// AsAddress returns the address of the value, or an error if it is not an
// address.
func (v Value) AsAddress() (string, error) {
	if v.kind != KindAddress {
		return "", xerrors.Errorf("expected address but got %v", v.kind)
	}

	return v.text, nil
}

// AsVec returns the items of the value, or an error if it is not a list.
func (v Value) AsVec() ([]Value, error) {
	if v.kind != KindVec {
		return nil, xerrors.Errorf("expected vec but got %v", v.kind)
	}

	return v.items, nil
}

// Equal returns true when both values are the same.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind || v.flag != o.flag || v.num != o.num || v.text != o.text {
		return false
	}

	if len(v.items) != len(o.items) {
		return false
	}

	for i := range v.items {
		if !v.items[i].Equal(o.items[i]) {
			return false
		}
	}

	return true
}

// Serialize implements serde.Message.
func (v Value) Serialize(ctx serde.Context) ([]byte, error) {
	format := valueFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, v)
	if err != nil {
		return nil, xerrors.Errorf("couldn't encode value: %v", err)
	}

	return data, nil
}

// Fingerprint implements serde.Fingerprinter. It writes the kind followed by
// the big-endian payload of the value.
func (v Value) Fingerprint(w io.Writer) error {
	_, err := w.Write([]byte{byte(v.kind)})
	if err != nil {
		return xerrors.Errorf("couldn't write kind: %v", err)
	}

	switch v.kind {
	case KindBool:
		b := byte(0)
		if v.flag {
			b = 1
		}

		_, err = w.Write([]byte{b})
	case KindU32:
		err = writeUint32(w, v.num)
	case KindSymbol, KindAddress:
		err = writeString(w, v.text)
	case KindVec:
		err = writeUint32(w, uint32(len(v.items)))

		for i := 0; err == nil && i < len(v.items); i++ {
			err = v.items[i].Fingerprint(w)
		}
	}

	if err != nil {
		return xerrors.Errorf("couldn't write %v: %v", v.kind, err)
	}

	return nil
}

// String implements fmt.Stringer.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return fmt.Sprintf("%t", v.flag)
	case KindU32:
		return fmt.Sprintf("%d", v.num)
	case KindSymbol:
		return v.text
	case KindAddress:
		return "@" + v.text
	case KindVec:
		items := make([]string, len(v.items))
		for i, item := range v.items {
			items[i] = item.String()
		}

		return "[" + strings.Join(items, ",") + "]"
	default:
		return "void"
	}
}

func writeUint32(w io.Writer, n uint32) error {
	buffer := make([]byte, 4)
	binary.BigEndian.PutUint32(buffer, n)

	_, err := w.Write(buffer)
	return err
}

func writeUint64(w io.Writer, n uint64) error {
	buffer := make([]byte, 8)
	binary.BigEndian.PutUint64(buffer, n)

	_, err := w.Write(buffer)
	return err
}

func writeString(w io.Writer, s string) error {
	err := writeUint32(w, uint32(len(s)))
	if err != nil {
		return err
	}

	_, err = w.Write([]byte(s))
	return err
}
