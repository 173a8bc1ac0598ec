// Package wire translates between fixed-layout Go values and the
// little-endian 32-bit word stream that crosses the host/device boundary.
//
// Every device command header and every appended instruction is a flat
// sequence of int32/uint32 fields; this package lets the higher layers
// describe that layout as ordinary Go structs and slices instead of manually
// indexing into a []byte.
package wire

import (
	"encoding/binary"
	"fmt"
	"reflect"
)

// LittleEndian is the byte order used for the entire host/device wire
// format. The on-device dispatcher cores are little-endian RISC-V, so this
// is not a matter of taste.
var LittleEndian = binary.LittleEndian

// AppendUint32 appends the little-endian representation of num to buf.
func AppendUint32(buf []byte, num uint32) []byte {
	buf = append(buf, make([]byte, 4)...)
	LittleEndian.PutUint32(buf[len(buf)-4:], num)
	return buf
}

// Marshal appends the binary representation of data to buf and returns the
// extended slice. data must be built exclusively out of fixed-width signed
// and unsigned integers, arrays, slices and structs of the same; it must not
// contain pointers other than the top-level one.
func Marshal(buf []byte, data any) []byte {
	return marshal(buf, reflect.Indirect(reflect.ValueOf(data)))
}

func marshal(buf []byte, data reflect.Value) []byte {
	switch data.Kind() {
	case reflect.Int32:
		buf = AppendUint32(buf, uint32(int32(data.Int())))
	case reflect.Uint32:
		buf = AppendUint32(buf, uint32(data.Uint()))

	case reflect.Array, reflect.Slice:
		for i, l := 0, data.Len(); i < l; i++ {
			buf = marshal(buf, data.Index(i))
		}

	case reflect.Struct:
		for i, l := 0, data.NumField(); i < l; i++ {
			buf = marshal(buf, data.Field(i))
		}

	default:
		panic("wire: invalid type: " + data.Type().String())
	}
	return buf
}

// Unmarshal unpacks buf into data. data must be a pointer to a value built
// out of the types Marshal supports and buf must have a length of exactly
// Size(data).
func Unmarshal(buf []byte, data any) {
	value := reflect.ValueOf(data)
	if value.Kind() != reflect.Ptr {
		panic("wire: invalid type: " + value.Type().String())
	}
	rest := unmarshal(buf, value.Elem())
	if len(rest) != 0 {
		panic(fmt.Sprintf("wire: buffer too long by %d bytes", len(rest)))
	}
}

func unmarshal(buf []byte, data reflect.Value) []byte {
	switch data.Kind() {
	case reflect.Int32:
		data.SetInt(int64(int32(LittleEndian.Uint32(buf))))
		buf = buf[4:]
	case reflect.Uint32:
		data.SetUint(uint64(LittleEndian.Uint32(buf)))
		buf = buf[4:]

	case reflect.Array, reflect.Slice:
		for i, l := 0, data.Len(); i < l; i++ {
			buf = unmarshal(buf, data.Index(i))
		}

	case reflect.Struct:
		for i, l := 0, data.NumField(); i < l; i++ {
			buf = unmarshal(buf, data.Field(i))
		}

	default:
		panic("wire: invalid type: " + data.Type().String())
	}
	return buf
}

// WordsToBytes renders a slice of 32-bit words as little-endian bytes, the
// form data takes once it crosses into the command ring.
func WordsToBytes(words []uint32) []byte {
	buf := make([]byte, 0, len(words)*4)
	for _, w := range words {
		buf = AppendUint32(buf, w)
	}
	return buf
}

// BytesToWords is the inverse of WordsToBytes. len(buf) must be a multiple
// of 4.
func BytesToWords(buf []byte) []uint32 {
	if len(buf)%4 != 0 {
		panic(fmt.Sprintf("wire: %d is not a multiple of 4", len(buf)))
	}
	words := make([]uint32, len(buf)/4)
	for i := range words {
		words[i] = LittleEndian.Uint32(buf[i*4:])
	}
	return words
}

// Size returns the number of bytes Marshal(nil, v) would produce.
func Size(v any) int {
	return sizeof(reflect.Indirect(reflect.ValueOf(v)))
}

func sizeof(data reflect.Value) int {
	switch data.Kind() {
	case reflect.Int32, reflect.Uint32:
		return 4

	case reflect.Array, reflect.Slice:
		var size int
		for i, l := 0, data.Len(); i < l; i++ {
			size += sizeof(data.Index(i))
		}
		return size

	case reflect.Struct:
		var size int
		for i, l := 0, data.NumField(); i < l; i++ {
			size += sizeof(data.Field(i))
		}
		return size

	default:
		panic("wire: invalid type: " + data.Type().String())
	}
}
