package digest_test

import (
	"testing"

	"github.com/chaos0211/block-dt/foundation/blockchain/digest"
)

func Test_Hash(t *testing.T) {
	value := struct {
		Name string `json:"name"`
	}{
		Name: "Bill",
	}

	hash, err := digest.Hash(value)
	if err != nil {
		t.Fatalf("Should be able to hash the value: %s", err)
	}

	const exp = "7de0701e03cd8189be810d048e5de6a9229e3b268608f8c396745e754c9bdbcf"
	if hash != exp {
		t.Logf("got: %s", hash)
		t.Logf("exp: %s", exp)
		t.Fatalf("Should get back the right hash.")
	}

	again, err := digest.Hash(value)
	if err != nil {
		t.Fatalf("Should be able to hash the value again: %s", err)
	}

	if hash != again {
		t.Logf("got: %s", again)
		t.Logf("exp: %s", hash)
		t.Fatalf("Should get back the same hash for the same value.")
	}
}

func Test_Sum(t *testing.T) {
	const exp = "2e1cfa82b035c26cbbbdae632cea070514eb8b773f616aaeaf668e2f0be8f10d"

	if got := digest.Sum([]byte("empty")); got != exp {
		t.Logf("got: %s", got)
		t.Logf("exp: %s", exp)
		t.Fatalf("Should get back the right hash for the empty sentinel.")
	}
}

func Test_CanonicalMapOrder(t *testing.T) {
	a := map[string]any{"b": 2, "a": 1, "c": map[string]any{"z": 1, "y": "<x>"}}
	b := map[string]any{"c": map[string]any{"y": "<x>", "z": 1}, "a": 1, "b": 2}

	da, err := digest.Canonical(a)
	if err != nil {
		t.Fatalf("Should be able to encode the first map: %s", err)
	}

	db, err := digest.Canonical(b)
	if err != nil {
		t.Fatalf("Should be able to encode the second map: %s", err)
	}

	const exp = `{"a":1,"b":2,"c":{"y":"<x>","z":1}}`
	if string(da) != exp || string(db) != exp {
		t.Logf("got: %s / %s", da, db)
		t.Logf("exp: %s", exp)
		t.Fatalf("Should get back sorted keys without HTML escaping.")
	}
}

func Test_ZeroHash(t *testing.T) {
	if len(digest.ZeroHash) != 64 {
		t.Fatalf("Should have a 64 character zero hash, got %d", len(digest.ZeroHash))
	}
}
