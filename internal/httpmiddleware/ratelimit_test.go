package httpmiddleware

import "testing"

func TestTokenBucketAllow(t *testing.T) {
	l := NewTokenBucket(2, 2)

	if !l.Allow("1.2.3.4") {
		t.Fatal("first request denied")
	}
	if !l.Allow("1.2.3.4") {
		t.Fatal("second request denied")
	}
	if l.Allow("1.2.3.4") {
		t.Error("third request allowed beyond capacity")
	}
	// Other clients keep their own bucket.
	if !l.Allow("5.6.7.8") {
		t.Error("fresh client denied")
	}
}

func TestTokenBucketDefaultsCapacity(t *testing.T) {
	l := NewTokenBucket(0, 5)
	for i := 0; i < 5; i++ {
		if !l.Allow("a") {
			t.Fatalf("request %d denied under default capacity", i+1)
		}
	}
	if l.Allow("a") {
		t.Error("request beyond per-minute rate allowed")
	}
}
