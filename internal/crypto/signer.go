package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/stakingledger/internal/domain"
)

// Request signature headers.
const (
	HeaderAddress   = "X-Stake-Address"
	HeaderTimestamp = "X-Stake-Timestamp"
	HeaderSignature = "X-Stake-Signature"
)

// RequestSignature is the caller identity attached to a signed request.
type RequestSignature struct {
	Address   common.Address
	Timestamp int64
	Signature string
}

// Apply writes the signature headers onto h.
func (r RequestSignature) Apply(h http.Header) {
	h.Set(HeaderAddress, r.Address.Hex())
	h.Set(HeaderTimestamp, strconv.FormatInt(r.Timestamp, 10))
	h.Set(HeaderSignature, r.Signature)
}

// ParseRequestSignature reads the signature headers from h.
func ParseRequestSignature(h http.Header) (RequestSignature, error) {
	addr, ts, sig := h.Get(HeaderAddress), h.Get(HeaderTimestamp), h.Get(HeaderSignature)
	if addr == "" || ts == "" || sig == "" {
		return RequestSignature{}, fmt.Errorf("crypto: missing signature headers: %w", domain.ErrBadSignature)
	}
	if !common.IsHexAddress(addr) {
		return RequestSignature{}, fmt.Errorf("crypto: malformed address %q: %w", addr, domain.ErrBadSignature)
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return RequestSignature{}, fmt.Errorf("crypto: malformed timestamp %q: %w", ts, domain.ErrBadSignature)
	}
	return RequestSignature{Address: common.HexToAddress(addr), Timestamp: unix, Signature: sig}, nil
}

// Signer signs API requests with a secp256k1 key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner creates a Signer from a hex private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return &Signer{key: key, address: ethcrypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address returns the signer's identity.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignRequest signs method, path and body at time at.
func (s *Signer) SignRequest(at time.Time, method, path string, body []byte) (RequestSignature, error) {
	ts := at.Unix()
	sig, err := ethcrypto.Sign(RequestDigest(ts, method, path, body), s.key)
	if err != nil {
		return RequestSignature{}, fmt.Errorf("crypto: sign request: %w", err)
	}
	sig[64] += 27
	return RequestSignature{
		Address:   s.address,
		Timestamp: ts,
		Signature: "0x" + hex.EncodeToString(sig),
	}, nil
}

// RequestMessage is the text a caller signs: the unix timestamp, the
// upper-case method, the path with query, and the hex keccak256 of the body.
func RequestMessage(ts int64, method, path string, body []byte) string {
	return strconv.FormatInt(ts, 10) + strings.ToUpper(method) + path +
		hex.EncodeToString(ethcrypto.Keccak256(body))
}

// RequestDigest is the EIP-191 personal-message hash of RequestMessage.
func RequestDigest(ts int64, method, path string, body []byte) []byte {
	return accounts.TextHash([]byte(RequestMessage(ts, method, path, body)))
}

// Recover returns the address that produced sig over the request.
func Recover(sig RequestSignature, method, path string, body []byte) (common.Address, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(sig.Signature, "0x"))
	if err != nil || len(raw) != 65 {
		return common.Address{}, fmt.Errorf("crypto: malformed signature: %w", domain.ErrBadSignature)
	}
	if raw[64] >= 27 {
		raw[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(RequestDigest(sig.Timestamp, method, path, body), raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: recover: %v: %w", err, domain.ErrBadSignature)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// Verify checks that sig was made by the address it claims and that its
// timestamp is within maxSkew of now.
func Verify(sig RequestSignature, method, path string, body []byte, now time.Time, maxSkew time.Duration) error {
	skew := now.Sub(time.Unix(sig.Timestamp, 0))
	if skew < 0 {
		skew = -skew
	}
	if maxSkew > 0 && skew > maxSkew {
		return fmt.Errorf("crypto: timestamp skew %s exceeds %s: %w", skew, maxSkew, domain.ErrBadSignature)
	}
	addr, err := Recover(sig, method, path, body)
	if err != nil {
		return err
	}
	if addr != sig.Address {
		return fmt.Errorf("crypto: signature from %s, claimed %s: %w", addr.Hex(), sig.Address.Hex(), domain.ErrBadSignature)
	}
	return nil
}

// addressOf returns the hex address for a raw 32-byte key.
func addressOf(key []byte) (string, error) {
	pk, err := ethcrypto.ToECDSA(key)
	if err != nil {
		return "", fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(pk.PublicKey).Hex(), nil
}
