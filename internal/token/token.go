package token

import (
	"encoding/base32"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const macSize = 8

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Generator issues opaque validation tokens for printed queue tickets.
// A token is random entropy plus a keyed BLAKE2b tag, so a scanned string
// can be rejected as forged before the ledger index is consulted.
type Generator struct {
	secret []byte
}

// NewGenerator builds a generator with the given signing secret.
func NewGenerator(secret string) *Generator {
	return &Generator{secret: []byte(secret)}
}

// Generate returns a fresh token. Tokens are unique for the lifetime of the
// ledger; uniqueness is enforced by the ledger's token index, the entropy
// here only makes collisions improbable.
func (g *Generator) Generate() (string, error) {
	id := uuid.New()
	tag, err := g.mac(id[:])
	if err != nil {
		return "", err
	}
	raw := append(id[:], tag...)
	return encoding.EncodeToString(raw), nil
}

// Verify checks structural integrity of a token. It says nothing about
// whether a ticket exists for it; resolution is the ledger's job.
func (g *Generator) Verify(tok string) bool {
	raw, err := encoding.DecodeString(strings.ToUpper(strings.TrimSpace(tok)))
	if err != nil || len(raw) != 16+macSize {
		return false
	}
	tag, err := g.mac(raw[:16])
	if err != nil {
		return false
	}
	for i := 0; i < macSize; i++ {
		if tag[i] != raw[16+i] {
			return false
		}
	}
	return true
}

func (g *Generator) mac(payload []byte) ([]byte, error) {
	h, err := blake2b.New(macSize, g.secret)
	if err != nil {
		return nil, err
	}
	h.Write(payload)
	return h.Sum(nil), nil
}
