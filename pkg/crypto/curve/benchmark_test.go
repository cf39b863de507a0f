package curve

import (
	"crypto/rand"
	"testing"
)

func BenchmarkP256_RandomScalar(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := RandomScalar(P256, rand.Reader); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkP256_ScalarMult(b *testing.B) {
	grp := NewP256()
	k, _ := RandomScalar(P256, rand.Reader)
	point := randomPoint(b, grp)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := grp.ScalarMult(point, k); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSecp256k1_ScalarMult(b *testing.B) {
	grp := NewSecp256k1()
	k, _ := RandomScalar(Secp256k1, rand.Reader)
	point := randomPoint(b, grp)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := grp.ScalarMult(point, k); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkP256_Add(b *testing.B) {
	grp := NewP256()
	p1 := randomPoint(b, grp)
	p2 := randomPoint(b, grp)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := grp.Add(p1, p2); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkP256_Decompress(b *testing.B) {
	enc := EncodePoint(randomPoint(b, NewP256()), true)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := DecodePoint(P256, enc); err != nil {
			b.Fatal(err)
		}
	}
}
