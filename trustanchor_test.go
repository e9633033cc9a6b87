package resolvd

import "testing"

const testDS = ". 86400 IN DS 20326 8 2 E06D44B80B8F1D39A95C0B0D7C65D08458E880409BBC683457104237C7F8EC8D"

func TestNewTrustAnchorStoreParsesDS(t *testing.T) {
	store, err := NewTrustAnchorStore([]string{testDS})
	if err != nil {
		t.Fatalf("expected a well-formed DS record to parse: %s", err)
	}
	if !store.HasAny() {
		t.Fatal("expected HasAny to report true after loading one anchor")
	}
	anchors := store.For(".")
	if len(anchors) != 1 || anchors[0].DS == nil {
		t.Fatalf("expected one DS anchor for the root zone, got %#v", anchors)
	}
}

func TestNewTrustAnchorStoreEmptyIsValid(t *testing.T) {
	store, err := NewTrustAnchorStore(nil)
	if err != nil {
		t.Fatalf("an empty anchor list must be valid: %s", err)
	}
	if store.HasAny() {
		t.Fatal("expected HasAny to report false with no anchors configured")
	}
}

func TestNewTrustAnchorStoreRejectsGarbage(t *testing.T) {
	if _, err := NewTrustAnchorStore([]string{"not a resource record"}); err == nil {
		t.Fatal("expected a malformed anchor string to fail to parse")
	}
}

func TestTrustAnchorStoreReloadSwapsAtomically(t *testing.T) {
	store, err := NewTrustAnchorStore([]string{testDS})
	if err != nil {
		t.Fatalf("failed to build initial store: %s", err)
	}
	if err := store.Reload(nil); err != nil {
		t.Fatalf("expected Reload with an empty set to succeed: %s", err)
	}
	if store.HasAny() {
		t.Fatal("expected the reloaded (empty) snapshot to fully replace the old one")
	}
}

func TestIsRootZone(t *testing.T) {
	if !isRootZone(".") {
		t.Fatal("expected \".\" to be the root zone")
	}
	if isRootZone("com.") {
		t.Fatal("expected \"com.\" not to be the root zone")
	}
}
