package wire

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type inner struct {
	Field int32
}

type outer struct {
	A     int32
	B     uint32
	Array [3]uint32
	Inner inner
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	want := outer{
		A:     -1,
		B:     0xdeadbeef,
		Array: [3]uint32{1, 2, 3},
		Inner: inner{Field: 42},
	}
	buf := Marshal(nil, want)
	if got, want := len(buf), Size(want); got != want {
		t.Fatalf("Marshal produced %d bytes, Size reports %d", got, want)
	}

	var got outer
	Unmarshal(buf, &got)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshalPanicsOnLeftoverBytes(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on oversized buffer")
		}
	}()
	var v uint32
	Unmarshal(make([]byte, 8), &v)
}

func TestAppendUint32IsLittleEndian(t *testing.T) {
	buf := AppendUint32(nil, 0x01020304)
	want := []byte{0x04, 0x03, 0x02, 0x01}
	if diff := cmp.Diff(want, buf); diff != "" {
		t.Errorf("AppendUint32 mismatch (-want +got):\n%s", diff)
	}
}
