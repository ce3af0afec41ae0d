// Package identity verifies the four signed-request headers every
// protected endpoint requires (spec §6): an identity address, a hex
// signature, the canonical message that was signed, and its timestamp.
//
// The signing scheme is adapted from subnet/wallet_binding.go's
// Keccak256-digest-then-crypto.Sign idiom, simplified from that file's
// EIP-712 struct hash (no on-chain contract is involved in verifying a
// coordinator request, so the richer domain-separated digest would be
// unneeded complexity) down to a flat hash of the canonical message, in
// the spirit of original_source/utils/auth.py's
// "talisman-ai-auth:{timestamp}" message scheme.
package identity

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/hetu-project/validator-coordinator/internal/coreerr"
)

// MessagePrefix is prepended to the unix timestamp to form the canonical
// message a caller must sign.
const MessagePrefix = "coordinator-auth"

// CanonicalMessage builds the exact string a client must sign.
func CanonicalMessage(unixTimestamp int64) string {
	return fmt.Sprintf("%s:%d", MessagePrefix, unixTimestamp)
}

// Request carries the four raw header values of a signed request.
type Request struct {
	Address   string
	Signature string
	Message   string
	Timestamp string
}

// Verifier checks signed requests against a configured clock-skew bound.
type Verifier struct {
	maxSkew time.Duration
	now     func() time.Time
}

// New constructs a Verifier that rejects requests whose timestamp skew
// exceeds maxSkew.
func New(maxSkew time.Duration) *Verifier {
	return &Verifier{maxSkew: maxSkew, now: time.Now}
}

// Verify checks the signature, message shape, and timestamp skew of req,
// returning the recovered address (lowercase hex, 0x-prefixed) on success.
func (v *Verifier) Verify(req Request) (string, error) {
	if req.Address == "" || req.Signature == "" || req.Message == "" || req.Timestamp == "" {
		return "", coreerr.New(coreerr.KindAuth, "missing authentication headers")
	}

	ts, err := strconv.ParseInt(req.Timestamp, 10, 64)
	if err != nil {
		return "", coreerr.Wrap(coreerr.KindAuth, "invalid timestamp header", err)
	}

	skew := v.now().Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > v.maxSkew {
		return "", coreerr.New(coreerr.KindAuth, "request timestamp outside allowed skew")
	}

	expected := CanonicalMessage(ts)
	if req.Message != expected {
		return "", coreerr.New(coreerr.KindAuth, "unexpected auth message format")
	}

	sigHex := strings.TrimPrefix(req.Signature, "0x")
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return "", coreerr.Wrap(coreerr.KindAuth, "signature is not valid hex", err)
	}
	if len(sig) != 65 {
		return "", coreerr.New(coreerr.KindAuth, "signature must be 65 bytes")
	}

	// go-ethereum's SigToPub expects the recovery id in [0,1]; callers
	// commonly send the Ethereum-adjusted [27,28] form (see
	// subnet/wallet_binding.go's "Adjust v value for Ethereum" comment).
	sigCopy := append([]byte(nil), sig...)
	if sigCopy[64] >= 27 {
		sigCopy[64] -= 27
	}

	digest := crypto.Keccak256([]byte(req.Message))
	pubKey, err := crypto.SigToPub(digest, sigCopy)
	if err != nil {
		return "", coreerr.Wrap(coreerr.KindAuth, "failed to recover public key from signature", err)
	}

	recovered := crypto.PubkeyToAddress(*pubKey)
	claimed := common.HexToAddress(req.Address)
	if recovered != claimed {
		return "", coreerr.New(coreerr.KindAuth, "signature does not match claimed identity")
	}

	return strings.ToLower(recovered.Hex()), nil
}
