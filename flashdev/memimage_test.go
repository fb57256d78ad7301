package flashdev

import "testing"

func TestMemImage_EraseIsAllOnes(t *testing.T) {
	img := NewMemImage(4, 8)
	for p := 0; p < 4; p++ {
		page, err := img.ReadPage(p)
		if err != nil {
			t.Fatalf("ReadPage(%d): %v", p, err)
		}
		for i, c := range page {
			if c != ChunkErased {
				t.Errorf("page %d chunk %d = %#x, want erased", p, i, c)
			}
		}
	}
}

func TestMemImage_ProgramOnlyClearsBits(t *testing.T) {
	img := NewMemImage(1, 4)
	if err := img.WriteChunk(0, 0, 0x00FF); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
	if err := img.WriteChunk(0, 0, 0x000F); err != nil {
		t.Fatalf("WriteChunk (clearing further): %v", err)
	}
	if err := img.WriteChunk(0, 0, 0x00F0); !errorsIs(err, ErrNotProgrammable) {
		t.Fatalf("WriteChunk (setting a cleared bit) = %v, want ErrNotProgrammable", err)
	}
}

func TestMemImage_EraseResetsToErased(t *testing.T) {
	img := NewMemImage(1, 4)
	if err := img.ZeroChunk(0, 2); err != nil {
		t.Fatalf("ZeroChunk: %v", err)
	}
	if err := img.ErasePage(0); err != nil {
		t.Fatalf("ErasePage: %v", err)
	}
	v, err := img.ReadChunk(0, 2)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if v != ChunkErased {
		t.Errorf("ReadChunk after erase = %#x, want erased", v)
	}
}

func TestMemImage_InterruptAfter(t *testing.T) {
	img := NewMemImage(2, 4)
	img.InterruptAfter(1)
	if err := img.WriteChunk(0, 0, 0x1234); err != nil {
		t.Fatalf("first write should succeed: %v", err)
	}
	if err := img.WriteChunk(0, 1, 0x5678); !errorsIs(err, ErrPowerLoss) {
		t.Fatalf("second write = %v, want ErrPowerLoss", err)
	}
}

func TestMemImage_SnapshotRoundTrip(t *testing.T) {
	img := NewMemImage(1, 4)
	if err := img.WriteChunk(0, 0, 0x1234); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
	snap := img.Snapshot()

	img2 := NewMemImageFromBytes(snap, 1, 4)
	v, err := img2.ReadChunk(0, 0)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if v != 0x1234 {
		t.Errorf("ReadChunk = %#x, want 0x1234", v)
	}
}

func TestMemImage_OutOfBounds(t *testing.T) {
	img := NewMemImage(1, 4)
	if _, err := img.ReadChunk(5, 0); !errorsIs(err, ErrOutOfBounds) {
		t.Errorf("ReadChunk(5, 0) = %v, want ErrOutOfBounds", err)
	}
	if _, err := img.ReadChunk(0, 99); !errorsIs(err, ErrOutOfBounds) {
		t.Errorf("ReadChunk(0, 99) = %v, want ErrOutOfBounds", err)
	}
}

func errorsIs(err, target error) bool {
	return err == target
}
