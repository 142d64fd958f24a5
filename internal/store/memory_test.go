package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"attendx/internal/model"
)

func TestMemoryAppendIfAbsent(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	rec := model.AttendanceRecord{ID: "r1", SessionID: "s1", MatricNo: "ENG/21/0001"}
	inserted, err := mem.AppendIfAbsent(ctx, rec)
	if err != nil || !inserted {
		t.Fatalf("first append: inserted=%v err=%v", inserted, err)
	}

	// Same pair in different case is the same record.
	dup := model.AttendanceRecord{ID: "r2", SessionID: "s1", MatricNo: "eng/21/0001"}
	inserted, err = mem.AppendIfAbsent(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate append err: %v", err)
	}
	if inserted {
		t.Error("duplicate pair was inserted")
	}

	// Same matric in another session is fine.
	other := model.AttendanceRecord{ID: "r3", SessionID: "s2", MatricNo: "ENG/21/0001"}
	if inserted, _ = mem.AppendIfAbsent(ctx, other); !inserted {
		t.Error("same matric in different session rejected")
	}
}

func TestMemoryAppendIfAbsentConcurrent(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	const attempts = 64
	var wg sync.WaitGroup
	results := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inserted, err := mem.AppendIfAbsent(ctx, model.AttendanceRecord{
				ID:        fmt.Sprintf("r%d", i),
				SessionID: "s1",
				MatricNo:  "ENG/21/0001",
			})
			if err != nil {
				t.Errorf("append: %v", err)
				return
			}
			results <- inserted
		}(i)
	}
	wg.Wait()
	close(results)

	inserted := 0
	for ok := range results {
		if ok {
			inserted++
		}
	}
	if inserted != 1 {
		t.Errorf("%d concurrent appends succeeded, want exactly 1", inserted)
	}
	recs, _ := mem.ListRecords(ctx)
	if len(recs) != 1 {
		t.Errorf("store holds %d records, want 1", len(recs))
	}
}

func TestMemoryAcquireLockConcurrent(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	const attempts = 32
	var wg sync.WaitGroup
	holders := make(chan string, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			held, err := mem.AcquireLock(ctx, "s1", "device-a", fmt.Sprintf("ENG/21/%04d", i))
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			holders <- held
		}(i)
	}
	wg.Wait()
	close(holders)

	first := ""
	for held := range holders {
		if first == "" {
			first = held
		}
		if held != first {
			t.Fatalf("lock reported different holders: %q vs %q", held, first)
		}
	}
	held, ok, _ := mem.GetLock(ctx, "s1", "device-a")
	if !ok || held != first {
		t.Errorf("final lock holder = %q ok=%v, want %q", held, ok, first)
	}
}

func TestMemoryEndSessionIdempotent(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	if err := mem.PutSession(ctx, model.Session{ID: "s1", Active: true}); err != nil {
		t.Fatal(err)
	}

	first, err := mem.EndSession(ctx, "s1", 1000)
	if err != nil || first.Active || first.EndTime != 1000 {
		t.Fatalf("EndSession: %+v err=%v", first, err)
	}
	second, err := mem.EndSession(ctx, "s1", 2000)
	if err != nil {
		t.Fatal(err)
	}
	if second.EndTime != 1000 {
		t.Errorf("second EndSession moved endTime to %d", second.EndTime)
	}
}

func TestMemoryDeactivateAllKeepsEndTimes(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	_ = mem.PutSession(ctx, model.Session{ID: "s1", Active: true})
	_ = mem.PutSession(ctx, model.Session{ID: "s2", Active: true})

	if err := mem.DeactivateAll(ctx); err != nil {
		t.Fatal(err)
	}
	sessions, _ := mem.ListSessions(ctx)
	for _, s := range sessions {
		if s.Active {
			t.Errorf("session %s still active", s.ID)
		}
		if s.EndTime != 0 {
			t.Errorf("session %s got endTime %d from deactivation", s.ID, s.EndTime)
		}
	}
}

func TestMemoryReset(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	_ = mem.PutSession(ctx, model.Session{ID: "s1", Active: true})
	_, _ = mem.AppendIfAbsent(ctx, model.AttendanceRecord{ID: "r1", SessionID: "s1", MatricNo: "M"})
	_, _ = mem.AcquireLock(ctx, "s1", "d1", "M")

	if err := mem.Bundle().Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if sessions, _ := mem.ListSessions(ctx); len(sessions) != 0 {
		t.Error("sessions survived reset")
	}
	if recs, _ := mem.ListRecords(ctx); len(recs) != 0 {
		t.Error("records survived reset")
	}
	if _, ok, _ := mem.GetLock(ctx, "s1", "d1"); ok {
		t.Error("lock survived reset")
	}

	// A pair rejected before the reset is insertable again.
	if inserted, _ := mem.AppendIfAbsent(ctx, model.AttendanceRecord{ID: "r2", SessionID: "s1", MatricNo: "M"}); !inserted {
		t.Error("dedup index survived reset")
	}
}

func TestMemorySetFaceImage(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	_, _ = mem.AppendIfAbsent(ctx, model.AttendanceRecord{ID: "r1", SessionID: "s1", MatricNo: "M"})

	if err := mem.SetFaceImage(ctx, "r1", "https://cdn.example/x.jpg"); err != nil {
		t.Fatal(err)
	}
	rec, err := mem.GetRecord(ctx, "r1")
	if err != nil || rec.FaceImage != "https://cdn.example/x.jpg" {
		t.Errorf("record = %+v err=%v", rec, err)
	}
	if err := mem.SetFaceImage(ctx, "nope", "x"); err != ErrNotFound {
		t.Errorf("SetFaceImage(unknown) = %v, want ErrNotFound", err)
	}
}
