package providers

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampedSignature(t *testing.T) {
	secret := []byte("whsec_test")
	body := []byte(`{"id":"evt_1","event":"SUCCESS"}`)

	t.Run("round trip", func(t *testing.T) {
		ts := time.Now().Unix()
		header := fmt.Sprintf("t=%d,v1=%s", ts, computeTimestampedSig(secret, ts, body))
		require.NoError(t, verifyTimestampedSig(secret, header, body))
	})

	t.Run("accepts spaces around parts", func(t *testing.T) {
		ts := int64(1700000000)
		header := fmt.Sprintf("t=%d, v1=%s", ts, computeTimestampedSig(secret, ts, body))
		require.NoError(t, verifyTimestampedSig(secret, header, body))
	})

	t.Run("tampered body rejected", func(t *testing.T) {
		ts := time.Now().Unix()
		header := fmt.Sprintf("t=%d,v1=%s", ts, computeTimestampedSig(secret, ts, body))
		err := verifyTimestampedSig(secret, header, []byte(`{"id":"evt_1","event":"FAILED"}`))
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("tampered timestamp rejected", func(t *testing.T) {
		ts := time.Now().Unix()
		header := fmt.Sprintf("t=%d,v1=%s", ts+1, computeTimestampedSig(secret, ts, body))
		assert.ErrorIs(t, verifyTimestampedSig(secret, header, body), ErrBadSignature)
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		ts := time.Now().Unix()
		header := fmt.Sprintf("t=%d,v1=%s", ts, computeTimestampedSig([]byte("other"), ts, body))
		assert.ErrorIs(t, verifyTimestampedSig(secret, header, body), ErrBadSignature)
	})

	t.Run("malformed headers rejected", func(t *testing.T) {
		for _, h := range []string{"", "t=abc,v1=deadbeef", "v1=deadbeef", "t=123", "garbage"} {
			assert.ErrorIs(t, verifyTimestampedSig(secret, h, body), ErrBadSignature, h)
		}
	})
}

func TestBodySignature(t *testing.T) {
	secret := []byte("whsec_test")
	body := []byte(`{"id":"evt_2"}`)

	t.Run("round trip", func(t *testing.T) {
		require.NoError(t, verifyBodySig(secret, computeBodySig(secret, body), body))
	})

	t.Run("tampered body rejected", func(t *testing.T) {
		sig := computeBodySig(secret, body)
		assert.ErrorIs(t, verifyBodySig(secret, sig, []byte(`{"id":"evt_3"}`)), ErrBadSignature)
	})

	t.Run("empty header rejected", func(t *testing.T) {
		assert.ErrorIs(t, verifyBodySig(secret, "", body), ErrBadSignature)
	})
}
