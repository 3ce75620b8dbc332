package stripepay

import (
	"fmt"
	"testing"

	"tickethub/internal/status"
	"tickethub/utils"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHMACKey = "stripepay-webhook-key"

func signedNotification(t *testing.T, key, state, amount string) ([]byte, string) {
	t.Helper()

	body := []byte(fmt.Sprintf(
		`{"chargeId":"ch_001","reference":"sale_42","state":%q,"txnAmount":%q,"sourceCurrency":"USD","payerName":"Ada","txnDateTime":"2026-08-28 10:30:00"}`,
		state, amount,
	))
	canonical := fmt.Sprintf("ch_001|sale_42|%s|%s|USD", state, amount)
	return body, utils.Hmac256([]byte(canonical), []byte(key))
}

func TestStripePay_VerifyNotification_Success(t *testing.T) {
	s := &StripePay{hmacKey: testHMACKey}
	body, sig := signedNotification(t, testHMACKey, "SUCCESS", "150.5")

	tran, err := s.VerifyNotification(body, sig)
	require.NoError(t, err)

	assert.Equal(t, "ch_001", tran.TransactionID)
	assert.Equal(t, "sale_42", tran.SaleID)
	assert.Equal(t, "approved", tran.Status)
	assert.True(t, decimal.RequireFromString("150.5").Equal(tran.Amount))
	assert.Equal(t, "USD", tran.Currency)
	assert.Equal(t, string(body), tran.RawPayload)
}

func TestStripePay_VerifyNotification_Failed(t *testing.T) {
	s := &StripePay{hmacKey: testHMACKey}
	body, sig := signedNotification(t, testHMACKey, "FAILED", "150.5")

	tran, err := s.VerifyNotification(body, sig)
	require.NoError(t, err)
	assert.Equal(t, "declined", tran.Status)
}

func TestStripePay_VerifyNotification_BadSignature(t *testing.T) {
	s := &StripePay{hmacKey: testHMACKey}

	t.Run("wrong key", func(t *testing.T) {
		body, sig := signedNotification(t, "other-key", "SUCCESS", "150.5")
		_, err := s.VerifyNotification(body, sig)
		assert.ErrorIs(t, err, status.ErrSignatureInvalid)
	})

	t.Run("tampered amount", func(t *testing.T) {
		body, _ := signedNotification(t, testHMACKey, "SUCCESS", "1.00")
		_, sig := signedNotification(t, testHMACKey, "SUCCESS", "150.5")
		_, err := s.VerifyNotification(body, sig)
		assert.ErrorIs(t, err, status.ErrSignatureInvalid)
	})

	t.Run("empty signature", func(t *testing.T) {
		body, _ := signedNotification(t, testHMACKey, "SUCCESS", "150.5")
		_, err := s.VerifyNotification(body, "")
		assert.ErrorIs(t, err, status.ErrSignatureInvalid)
	})
}
