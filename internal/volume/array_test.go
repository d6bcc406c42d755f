package volume

import "testing"

func TestArray_FirstAxisFastest(t *testing.T) {
	a := New(2, 3, 4)
	if a.Len() != 24 {
		t.Fatalf("Len() = %d, want 24", a.Len())
	}
	a.Set(7, 1, 2, 3)
	if got := a.Data[1+2*2+3*6]; got != 7 {
		t.Errorf("Data at offset 23 = %v, want 7", got)
	}
	if got := a.Strides(); got[0] != 1 || got[1] != 2 || got[2] != 6 {
		t.Errorf("Strides() = %v, want [1 2 6]", got)
	}
}

func TestArray_CloneIsIndependent(t *testing.T) {
	a := New(2, 2)
	a.Set(1, 0, 1)
	b := a.Clone()
	if !a.Equal(b) {
		t.Fatal("clone differs from source")
	}
	b.Set(5, 0, 1)
	b.Shape[0] = 9
	if a.At(0, 1) != 1 || a.Shape[0] != 2 {
		t.Error("clone shares storage with source")
	}
}

func TestArray_OffsetPanicsOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Offset did not panic on an out of range index")
		}
	}()
	New(2, 2).Offset(2, 0)
}
