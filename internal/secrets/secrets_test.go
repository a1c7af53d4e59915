package secrets

import (
	"testing"

	"github.com/zalando/go-keyring"
)

func TestResolvePassthrough(t *testing.T) {
	got, err := Resolve("raw-api-key")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "raw-api-key" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveKeyring(t *testing.T) {
	keyring.MockInit()
	if err := Set("twingly-key", "s3cret"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := Resolve("keyring:twingly-key")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "s3cret" {
		t.Fatalf("got %q", got)
	}

	if err := Delete("twingly-key"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := Resolve("keyring:twingly-key"); err == nil {
		t.Fatal("want error after delete")
	}
}

func TestResolveEmptyAccount(t *testing.T) {
	if _, err := Resolve("keyring: "); err == nil {
		t.Fatal("want error for empty account")
	}
}

func TestSetValidation(t *testing.T) {
	if err := Set("", "x"); err == nil {
		t.Fatal("want error for empty account")
	}
	if err := Set("acct", ""); err == nil {
		t.Fatal("want error for empty secret")
	}
}
