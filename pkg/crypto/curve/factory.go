package curve

import (
	"fmt"
	"strings"
)

// FromName returns the Group that matches the provided name.
func FromName(name string) (Group, error) {
	switch strings.ToLower(name) {
	case "p256", "p-256", "secp256r1", "prime256v1":
		return NewP256(), nil
	case "secp256k1":
		return NewSecp256k1(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurve, name)
	}
}

// SupportedCurves lists the canonical names understood by FromName.
func SupportedCurves() []string {
	return []string{P256.String(), Secp256k1.String()}
}
