package compute

import (
	"bytes"
	"testing"
)

func TestData(t *testing.T) {
	tests := []struct {
		name      string
		data      Data
		wantKind  DataKind
		wantBytes []byte
	}{
		{"sequence u32", Sequence([]uint32{1, 0x0a0b0c0d}), DataSequence, []byte{1, 0, 0, 0, 0x0d, 0x0c, 0x0b, 0x0a}},
		{"sequence pairs", Sequence([]Pair{{1, 2}}), DataSequence, []byte{1, 0, 0, 0, 2, 0, 0, 0}},
		{"empty sequence", Sequence([]float32{}), DataSequence, []byte{}},
		{"scalar u16", Scalar(uint16(0x0102)), DataScalar, []byte{2, 1}},
		{"uninitialized", Uninitialized(6), DataUninitialized, make([]byte, 6)},
		{"uninitialized zero", Uninitialized(0), DataUninitialized, []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.data.Kind() != tt.wantKind {
				t.Errorf("Kind() = %v, want %v", tt.data.Kind(), tt.wantKind)
			}
			got := tt.data.Bytes()
			if !bytes.Equal(got, tt.wantBytes) {
				t.Errorf("Bytes() = %v, want %v", got, tt.wantBytes)
			}
			if tt.data.Size() != uint64(len(got)) {
				t.Errorf("Size() = %d, len(Bytes()) = %d", tt.data.Size(), len(got))
			}
		})
	}
}

func TestData_SequenceCopiesElements(t *testing.T) {
	elems := []uint32{1, 2, 3}
	d := Sequence(elems)
	elems[0] = 99

	if got := elemsOf[uint32](d.Bytes()); got[0] != 1 {
		t.Errorf("Sequence observed a later write: %v", got)
	}

	// Bytes returns a fresh copy each call.
	b := d.Bytes()
	b[0] = 0xff
	if d.Bytes()[0] != 1 {
		t.Error("Bytes() exposed internal storage")
	}
}

func TestElemsOf_DropsTrailingBytes(t *testing.T) {
	got := elemsOf[uint32]([]byte{1, 0, 0, 0, 2, 0})
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("elemsOf() = %v, want [1]", got)
	}
	if got := elemsOf[uint32](nil); got == nil || len(got) != 0 {
		t.Errorf("elemsOf(nil) = %#v, want empty non-nil", got)
	}
}

func TestDataKind_String(t *testing.T) {
	tests := []struct {
		kind DataKind
		want string
	}{
		{DataSequence, "Sequence"},
		{DataScalar, "Scalar"},
		{DataUninitialized, "Uninitialized"},
		{DataKind(9), "DataKind(9)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("DataKind(%d).String() = %q, want %q", int(tt.kind), got, tt.want)
		}
	}
	if got := Uninitialized(12).String(); got != "Uninitialized(12 bytes)" {
		t.Errorf("Data.String() = %q", got)
	}
}
