package crypto

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakingledger/internal/domain"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func TestEncryptDecryptKey(t *testing.T) {
	blob, err := EncryptKey("0x"+testKey, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKey, got)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)

	_, err = EncryptKey(testKey, "")
	assert.ErrorIs(t, err, ErrEmptyPassword)
	_, err = EncryptKey("abcd", "pw")
	assert.Error(t, err)
}

func TestLoadKey(t *testing.T) {
	got, err := LoadKey(KeySource{RawKey: "0x" + testKey})
	require.NoError(t, err)
	assert.Equal(t, testKey, got)

	blob, err := EncryptKey(testKey, "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err = LoadKey(KeySource{KeyFile: path, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, testKey, got)

	_, err = LoadKey(KeySource{})
	assert.ErrorIs(t, err, ErrNoKeySource)
}

func TestSignAndVerifyRequest(t *testing.T) {
	signer, err := NewSigner(testKey)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"lock_days":30,"amount":"5"}`)
	sig, err := signer.SignRequest(now, "POST", "/api/positions", body)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), sig.Address)

	require.NoError(t, Verify(sig, "post", "/api/positions", body, now.Add(10*time.Second), time.Minute))

	tests := []struct {
		name   string
		sig    RequestSignature
		method string
		path   string
		body   []byte
		now    time.Time
	}{
		{"tampered body", sig, "POST", "/api/positions", []byte(`{}`), now},
		{"other path", sig, "POST", "/api/positions/1/close", body, now},
		{"stale", sig, "POST", "/api/positions", body, now.Add(2 * time.Minute)},
		{"claimed other address", RequestSignature{
			Address:   common.HexToAddress("0x01"),
			Timestamp: sig.Timestamp,
			Signature: sig.Signature,
		}, "POST", "/api/positions", body, now},
		{"garbage signature", RequestSignature{
			Address:   sig.Address,
			Timestamp: sig.Timestamp,
			Signature: "0x1234",
		}, "POST", "/api/positions", body, now},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.sig, tt.method, tt.path, tt.body, tt.now, time.Minute)
			assert.ErrorIs(t, err, domain.ErrBadSignature)
		})
	}
}

func TestRequestSignatureHeaders(t *testing.T) {
	signer, err := NewSigner(testKey)
	require.NoError(t, err)
	sig, err := signer.SignRequest(time.Unix(42, 0), "GET", "/api/tiers", nil)
	require.NoError(t, err)

	h := http.Header{}
	sig.Apply(h)
	parsed, err := ParseRequestSignature(h)
	require.NoError(t, err)
	assert.Equal(t, sig, parsed)

	h.Del(HeaderSignature)
	_, err = ParseRequestSignature(h)
	assert.ErrorIs(t, err, domain.ErrBadSignature)

	h = http.Header{}
	h.Set(HeaderAddress, "nope")
	h.Set(HeaderTimestamp, "1")
	h.Set(HeaderSignature, "0x00")
	_, err = ParseRequestSignature(h)
	assert.ErrorIs(t, err, domain.ErrBadSignature)
}

func TestRequestMessage(t *testing.T) {
	msg := RequestMessage(7, "get", "/api/tiers", nil)
	// keccak256 of the empty string.
	assert.Equal(t, "7GET/api/tiersc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", msg)
}
