package curve

import "testing"

func TestFromName(t *testing.T) {
	curves := map[string]ID{
		"p256":       P256,
		"P-256":      P256,
		"secp256r1":  P256,
		"prime256v1": P256,
		"secp256k1":  Secp256k1,
	}

	for input, expected := range curves {
		grp, err := FromName(input)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", input, err)
		}

		if grp.ID() != expected {
			t.Fatalf("expected %s, got %s", expected, grp.ID())
		}
	}

	if _, err := FromName("ristretto255"); err == nil {
		t.Fatal("expected error for unsupported curve")
	}
}

func TestSupportedCurves(t *testing.T) {
	for _, name := range SupportedCurves() {
		if _, err := FromName(name); err != nil {
			t.Errorf("advertised curve %s is not accepted: %v", name, err)
		}
	}
}
