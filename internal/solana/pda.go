package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	solanago "github.com/gagliardetto/solana-go"
)

const (
	maxSeeds      = 16
	maxSeedLength = 32
	pdaMarker     = "ProgramDerivedAddress"
)

// ErrNoViableBump is returned when every bump seed yields an on-curve point.
var ErrNoViableBump = errors.New("unable to find a viable program address bump seed")

// FindProgramAddress derives a Program Derived Address.
// Seeds are concatenated with a bump (255 downwards), the program ID and the
// "ProgramDerivedAddress" marker, then hashed; the first off-curve hash wins.
func FindProgramAddress(seeds [][]byte, programID solanago.PublicKey) (solanago.PublicKey, uint8, error) {
	if len(seeds) > maxSeeds-1 {
		return solanago.PublicKey{}, 0, fmt.Errorf("too many seeds: %d", len(seeds))
	}
	for i, seed := range seeds {
		if len(seed) > maxSeedLength {
			return solanago.PublicKey{}, 0, fmt.Errorf("seed %d exceeds %d bytes", i, maxSeedLength)
		}
	}

	for bump := byte(255); bump > 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{bump})
		h.Write(programID[:])
		h.Write([]byte(pdaMarker))

		var candidate [32]byte
		copy(candidate[:], h.Sum(nil))

		if !isOnCurve(candidate[:]) {
			return solanago.PublicKeyFromBytes(candidate[:]), bump, nil
		}
	}

	return solanago.PublicKey{}, 0, ErrNoViableBump
}

// MetadataAddress returns the Metaplex metadata PDA for mint.
// Seeds: ["metadata", metadata_program_id, mint]
func MetadataAddress(mint solanago.PublicKey) (solanago.PublicKey, error) {
	addr, _, err := FindProgramAddress([][]byte{
		[]byte("metadata"),
		MetadataProgramID[:],
		mint[:],
	}, MetadataProgramID)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("derive metadata address for %s: %w", mint, err)
	}
	return addr, nil
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
