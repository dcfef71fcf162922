package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveGetRoundTrip(t *testing.T) {
	c := &Cache{Dir: t.TempDir()}
	ctx := context.Background()
	key := KeyFrom("model-a", "prompt")

	if _, ok, err := c.Get(ctx, key); err != nil || ok {
		t.Fatalf("empty cache: ok=%v err=%v", ok, err)
	}
	if err := c.Save(ctx, key, []byte(`{"fields":{}}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	b, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(b) != `{"fields":{}}` {
		t.Fatalf("payload = %q", b)
	}
}

func TestKeyFromDistinguishesModel(t *testing.T) {
	if KeyFrom("a", "p") == KeyFrom("b", "p") {
		t.Fatal("keys must differ across models")
	}
	if KeyFrom("a", "p") != KeyFrom("a", "p") {
		t.Fatal("key must be stable")
	}
}

func TestPurgeOlderThan(t *testing.T) {
	c := &Cache{Dir: t.TempDir()}
	ctx := context.Background()
	if err := c.Save(ctx, "old", []byte("x")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	stale := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(filepath.Join(c.Dir, "old.json"), stale, stale); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	if err := c.Save(ctx, "fresh", []byte("y")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := c.PurgeOlderThan(time.Hour); err != nil {
		t.Fatalf("PurgeOlderThan: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "old"); ok {
		t.Fatal("stale entry survived purge")
	}
	if _, ok, _ := c.Get(ctx, "fresh"); !ok {
		t.Fatal("fresh entry purged")
	}
}

func TestStrictPerms(t *testing.T) {
	c := &Cache{Dir: filepath.Join(t.TempDir(), "cache"), StrictPerms: true}
	if err := c.Save(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(c.Dir)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode()&0o777 != 0o700 {
		t.Fatalf("dir mode = %o", info.Mode()&0o777)
	}
	fi, err := os.Stat(filepath.Join(c.Dir, "k.json"))
	if err != nil {
		t.Fatalf("Stat file: %v", err)
	}
	if fi.Mode()&0o777 != 0o600 {
		t.Fatalf("file mode = %o", fi.Mode()&0o777)
	}
}
