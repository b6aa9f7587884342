package catalog

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRecordCheckpoint_UpsertByDigest(t *testing.T) {
	c := newTestCatalog(t)

	ck := Checkpoint{Path: "/models/a.ckpt", Digest: "abc", Backend: "onnx", NMelChannels: 80, SamplingRate: 22050, Charset: "en"}
	id, err := c.RecordCheckpoint(ck)
	if err != nil {
		t.Fatalf("RecordCheckpoint failed: %v", err)
	}
	if id <= 0 {
		t.Errorf("expected positive ID, got %d", id)
	}

	// 同一 digest 换路径再次加载应返回相同 ID 并更新路径
	ck.Path = "/models/b.ckpt"
	id2, err := c.RecordCheckpoint(ck)
	if err != nil {
		t.Fatalf("RecordCheckpoint (again) failed: %v", err)
	}
	if id2 != id {
		t.Errorf("expected same ID %d, got %d", id, id2)
	}

	got, err := c.GetCheckpoint(id)
	if err != nil {
		t.Fatalf("GetCheckpoint failed: %v", err)
	}
	if got == nil || got.Path != "/models/b.ckpt" || got.NMelChannels != 80 || got.Charset != "en" {
		t.Errorf("unexpected checkpoint: %+v", got)
	}

	missing, err := c.GetCheckpoint(9999)
	if err != nil || missing != nil {
		t.Errorf("expected (nil, nil) for missing checkpoint, got %+v, %v", missing, err)
	}
}

func TestRecordRun_RecentRuns(t *testing.T) {
	c := newTestCatalog(t)
	ckID, err := c.RecordCheckpoint(Checkpoint{Path: "a", Digest: "d1", Backend: "onnx", NMelChannels: 80, SamplingRate: 22050})
	if err != nil {
		t.Fatalf("RecordCheckpoint failed: %v", err)
	}

	base := time.Now().Add(-time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := c.RecordRun(Run{
			CheckpointID: ckID,
			Device:       "cpu",
			Symbols:      10 + i,
			Frames:       100 + i,
			Elapsed:      time.Duration(i+1) * 250 * time.Millisecond,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("RecordRun failed: %v", err)
		}
		if len(id) != 36 {
			t.Errorf("expected uuid, got %q", id)
		}
		ids = append(ids, id)
	}

	runs, err := c.RecentRuns(2)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Errorf("runs not in reverse chronological order: %v", runs)
	}
	if runs[0].Frames != 102 || runs[0].Elapsed != 750*time.Millisecond {
		t.Errorf("unexpected run: %+v", runs[0])
	}
}

func TestRecordRun_RequiresCheckpoint(t *testing.T) {
	c := newTestCatalog(t)
	if _, err := c.RecordRun(Run{CheckpointID: 42, Device: "cpu"}); err == nil {
		t.Error("expected foreign key error for unknown checkpoint")
	}
}
