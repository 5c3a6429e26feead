package vault

import (
	"errors"
	"testing"
)

func TestParseRef(t *testing.T) {
	cases := []struct {
		ref       string
		path, key string
		ok        bool
	}{
		{"vault:secret/tronpoll/db#password", "secret/tronpoll/db", "password", true},
		{"vault:kv/a#b#c", "kv/a#b", "c", true},
		{"vault:secret/tronpoll/db", "", "", false},
		{"vault:#key", "", "", false},
		{"vault:secret/x#", "", "", false},
		{"secret/x#key", "", "", false},
	}

	for _, tc := range cases {
		path, key, err := ParseRef(tc.ref)
		if tc.ok {
			if err != nil {
				t.Errorf("ParseRef(%q) error: %v", tc.ref, err)
				continue
			}
			if path != tc.path || key != tc.key {
				t.Errorf("ParseRef(%q) = %q, %q; want %q, %q", tc.ref, path, key, tc.path, tc.key)
			}
			continue
		}
		if !errors.Is(err, ErrBadRef) {
			t.Errorf("ParseRef(%q) err = %v, want ErrBadRef", tc.ref, err)
		}
	}
}

func TestSplitMount(t *testing.T) {
	mount, rel := splitMount("secret/tronpoll/db")
	if mount != "secret" || rel != "tronpoll/db" {
		t.Fatalf("splitMount = %q, %q", mount, rel)
	}
	mount, rel = splitMount("secret")
	if mount != "secret" || rel != "" {
		t.Fatalf("splitMount single = %q, %q", mount, rel)
	}
}
