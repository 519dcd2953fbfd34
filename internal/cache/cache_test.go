package cache

import (
	"bytes"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	a := Key("embed", "hashing", "some text")
	b := Key("embed", "hashing", "some text")
	if a != b {
		t.Error("identical parts must produce identical keys")
	}
	if a == Key("embed", "hashing", "other text") {
		t.Error("different parts must produce different keys")
	}
	// Joining with a separator keeps ("ab","c") distinct from ("a","bc").
	if Key("ab", "c") == Key("a", "bc") {
		t.Error("part boundaries leaked into the key")
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Hour, time.Hour)

	if _, found := c.Get("missing"); found {
		t.Error("unexpected hit for missing key")
	}

	if err := c.Set("k", []byte("v"), time.Hour); err != nil {
		t.Fatal(err)
	}
	if val, found := c.Get("k"); !found || !bytes.Equal(val, []byte("v")) {
		t.Errorf("got %q, found=%v", val, found)
	}

	_ = c.Delete("k")
	if _, found := c.Get("k"); found {
		t.Error("deleted key still present")
	}
}

func TestDiskCache(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	if err := c.Set(Key("embed", "x"), []byte("payload"), time.Hour); err != nil {
		t.Fatal(err)
	}

	// A fresh instance over the same directory sees the entry.
	c2 := NewDiskCache(dir, time.Hour)
	if val, found := c2.Get(Key("embed", "x")); !found || !bytes.Equal(val, []byte("payload")) {
		t.Errorf("got %q, found=%v", val, found)
	}

	// Expired entries are dropped on read.
	if err := c.Set("expired", []byte("old"), -time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, found := c.Get("expired"); found {
		t.Error("expired entry served")
	}
}

func TestLayeredCache_PromotesFromDisk(t *testing.T) {
	dir := t.TempDir()

	// Seed the disk layer only.
	disk := NewDiskCache(dir, time.Hour)
	if err := disk.Set("k", []byte("v"), time.Hour); err != nil {
		t.Fatal(err)
	}

	layered := NewLayeredCache(time.Hour, dir, time.Hour)
	if val, found := layered.Get("k"); !found || !bytes.Equal(val, []byte("v")) {
		t.Fatalf("disk layer miss: %q, found=%v", val, found)
	}

	// After promotion the memory layer serves the key even if the disk
	// entry disappears.
	_ = disk.Delete("k")
	if _, found := layered.Get("k"); !found {
		t.Error("promoted entry missing from memory layer")
	}
}
