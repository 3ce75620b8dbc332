package psebank

import (
	"fmt"
	"testing"

	"tickethub/internal/status"
	"tickethub/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHMACKey = "psebank-webhook-key"

func signedNotification(t *testing.T, key, state string) ([]byte, string) {
	t.Helper()

	body := []byte(fmt.Sprintf(
		`{"debitId":"db_777","reference":"sale_9","state":%q,"txnAmount":"80","sourceCurrency":"USD","sourceName":"Grace","sourceAccount":"****4321","txnDateTime":"2026-08-28 11:00:00"}`,
		state,
	))
	canonical := fmt.Sprintf("db_777|sale_9|%s|80|USD", state)
	return body, utils.Hmac256([]byte(canonical), []byte(key))
}

func TestPSEBank_VerifyNotification_Success(t *testing.T) {
	p := &PSEBank{hmacKey: testHMACKey}
	body, sig := signedNotification(t, testHMACKey, "SUCCESS")

	tran, err := p.VerifyNotification(body, sig)
	require.NoError(t, err)

	assert.Equal(t, "db_777", tran.TransactionID)
	assert.Equal(t, "sale_9", tran.SaleID)
	assert.Equal(t, "approved", tran.Status)
	assert.Equal(t, "Grace", tran.Payer)
	assert.Equal(t, "****4321", tran.AccountNumber)
}

func TestPSEBank_VerifyNotification_Failed(t *testing.T) {
	p := &PSEBank{hmacKey: testHMACKey}
	body, sig := signedNotification(t, testHMACKey, "FAILED")

	tran, err := p.VerifyNotification(body, sig)
	require.NoError(t, err)
	assert.Equal(t, "declined", tran.Status)
}

func TestPSEBank_VerifyNotification_BadSignature(t *testing.T) {
	p := &PSEBank{hmacKey: testHMACKey}

	body, _ := signedNotification(t, testHMACKey, "SUCCESS")
	_, wrongSig := signedNotification(t, "other-key", "SUCCESS")

	_, err := p.VerifyNotification(body, wrongSig)
	assert.ErrorIs(t, err, status.ErrSignatureInvalid)

	// A declined notification cannot be replayed with an approved signature.
	failedBody, _ := signedNotification(t, testHMACKey, "FAILED")
	_, successSig := signedNotification(t, testHMACKey, "SUCCESS")
	_, err = p.VerifyNotification(failedBody, successSig)
	assert.ErrorIs(t, err, status.ErrSignatureInvalid)
}
