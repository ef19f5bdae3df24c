package authn

import "testing"

func TestRateLimiterAllow(t *testing.T) {
	t.Run("first N requests within the per-minute limit are allowed", func(t *testing.T) {
		rl := NewRateLimiter(map[string]int{BucketSearch: 3})
		for i := 0; i < 3; i++ {
			if !rl.Allow(BucketSearch, "key1") {
				t.Errorf("Allow() = false for request %d, want true", i+1)
			}
		}
	})

	t.Run("returns false once the per-minute limit is exhausted", func(t *testing.T) {
		rl := NewRateLimiter(map[string]int{BucketSearch: 2})
		rl.Allow(BucketSearch, "key1")
		rl.Allow(BucketSearch, "key1")
		if rl.Allow(BucketSearch, "key1") {
			t.Error("Allow() = true after limit exhausted, want false")
		}
	})

	t.Run("buckets and keys are independent", func(t *testing.T) {
		rl := NewRateLimiter(map[string]int{BucketSearch: 1, BucketChat: 1})
		if !rl.Allow(BucketSearch, "key1") {
			t.Fatal("expected first search call to be allowed")
		}
		if !rl.Allow(BucketChat, "key1") {
			t.Error("expected chat bucket to be unaffected by the search bucket")
		}
		if !rl.Allow(BucketSearch, "key2") {
			t.Error("expected a different key to be unaffected")
		}
	})

	t.Run("unknown bucket is unlimited", func(t *testing.T) {
		rl := NewRateLimiter(nil)
		for i := 0; i < 100; i++ {
			if !rl.Allow("unknown", "key1") {
				t.Fatalf("Allow() = false for unknown bucket on request %d", i+1)
			}
		}
	})
}

func TestDefaultLimits(t *testing.T) {
	rl := NewRateLimiter(nil)
	if rl.limits[BucketChat] != 10 {
		t.Errorf("default chat limit = %d, want 10", rl.limits[BucketChat])
	}
	if rl.limits[BucketSearch] != 20 {
		t.Errorf("default search limit = %d, want 20", rl.limits[BucketSearch])
	}
}

func TestKeyFor_StableAndDistinct(t *testing.T) {
	a := KeyFor("1.2.3.4", "tok-a")
	b := KeyFor("1.2.3.4", "tok-a")
	c := KeyFor("1.2.3.4", "tok-b")
	if a != b {
		t.Error("expected KeyFor to be deterministic")
	}
	if a == c {
		t.Error("expected different tokens to produce different keys")
	}
	if len(a) != keyPrefixLen*2 {
		t.Errorf("expected hex-encoded key of length %d, got %d", keyPrefixLen*2, len(a))
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	rl := NewRateLimiter(map[string]int{BucketSearch: 1})
	if got := rl.RetryAfterSeconds(BucketSearch, "key1"); got != 0 {
		t.Errorf("expected 0 before any request, got %d", got)
	}
	rl.Allow(BucketSearch, "key1")
	if got := rl.RetryAfterSeconds(BucketSearch, "key1"); got <= 0 || got > 60 {
		t.Errorf("expected a retry-after within the minute window, got %d", got)
	}
}
