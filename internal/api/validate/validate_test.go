package validate

import "testing"

func TestEmail(t *testing.T) {
	good := []string{"a@example.com", "first.last@sub.example.org"}
	for _, v := range good {
		if err := Email(v); err != nil {
			t.Errorf("Email(%q) = %v, want nil", v, err)
		}
	}
	bad := []string{"", "no-at-sign", "spaces in@example.com", "a@nodot"}
	for _, v := range bad {
		if err := Email(v); err == nil {
			t.Errorf("Email(%q) accepted", v)
		}
	}
}

func TestUUID(t *testing.T) {
	id, err := UUID("itemId", "6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	if err != nil {
		t.Fatalf("UUID: %v", err)
	}
	if id != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
		t.Fatalf("unexpected canonical form %q", id)
	}
	if _, err := UUID("itemId", "not-a-uuid"); err == nil {
		t.Fatal("malformed uuid accepted")
	}
}

func TestPassword(t *testing.T) {
	if err := Password("short"); err == nil {
		t.Fatal("short password accepted")
	}
	if err := Password("long enough"); err != nil {
		t.Fatalf("Password: %v", err)
	}
}

func TestCollectionName(t *testing.T) {
	if err := CollectionName(""); err == nil {
		t.Fatal("blank name accepted")
	}
	long := make([]byte, 101)
	for i := range long {
		long[i] = 'a'
	}
	if err := CollectionName(string(long)); err == nil {
		t.Fatal("oversized name accepted")
	}
	if err := CollectionName("Personal"); err != nil {
		t.Fatalf("CollectionName: %v", err)
	}
}
