package buffer

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/Natclanwy/cc-sfs/internal/models"
)

func batch(ticks ...int) []models.SensorStatus {
	out := make([]models.SensorStatus, len(ticks))
	for i, n := range ticks {
		out[i].Elegoo.CurrentTicks = n
	}
	return out
}

func TestStoreAndRetrieveInOrder(t *testing.T) {
	buf, err := New(t.TempDir(), 10, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 3; i++ {
		if err := buf.Store(batch(i, i*10)); err != nil {
			t.Fatal(err)
		}
	}
	if got := buf.Count(); got != 3 {
		t.Fatalf("Count() = %d, want 3", got)
	}

	batches, err := buf.RetrieveAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 3 {
		t.Fatalf("retrieved %d batches, want 3", len(batches))
	}
	for i, b := range batches {
		if b[0].Elegoo.CurrentTicks != i+1 || len(b) != 2 {
			t.Errorf("batch %d = %+v", i, b)
		}
	}
	if got := buf.Count(); got != 0 {
		t.Errorf("Count() after retrieve = %d", got)
	}
}

func TestCorruptedFileIsRemoved(t *testing.T) {
	dir := t.TempDir()
	buf, err := New(dir, 10, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "00000000T000000.000-000000.json"), []byte("{broken"), 0640); err != nil {
		t.Fatal(err)
	}
	if err := buf.Store(batch(7)); err != nil {
		t.Fatal(err)
	}

	batches, err := buf.RetrieveAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 1 || batches[0][0].Elegoo.CurrentTicks != 7 {
		t.Errorf("batches = %+v", batches)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("%d files left in spool", len(entries))
	}
}

func TestSizeLimitDropsOldest(t *testing.T) {
	dir := t.TempDir()
	buf, err := New(dir, 1, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	big := make([]models.SensorStatus, 2000)
	for i := range big {
		big[i].Elegoo.MainboardID = "0123456789abcdef0123456789abcdef"
	}
	for i := 0; i < 4; i++ {
		big[0].Elegoo.CurrentTicks = i
		if err := buf.Store(big); err != nil {
			t.Fatal(err)
		}
	}

	batches, err := buf.RetrieveAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) == 0 || len(batches) == 4 {
		t.Fatalf("retrieved %d batches, want the limit to drop some", len(batches))
	}
	if last := batches[len(batches)-1]; last[0].Elegoo.CurrentTicks != 3 {
		t.Errorf("newest batch ticks = %d, want 3", last[0].Elegoo.CurrentTicks)
	}
}
