package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"investledger/internal/config"
	"investledger/internal/notify"
)

func TestNewWiresEveryService(t *testing.T) {
	a, err := New(config.Load(), nil, notify.Nop{})

	require.NoError(t, err)
	assert.NotNil(t, a.Plans)
	assert.NotNil(t, a.Investments)
	assert.NotNil(t, a.Balances)
	assert.NotNil(t, a.Withdrawals)
	assert.NotNil(t, a.Referrals)
	assert.NotNil(t, a.Reporting)
	assert.NotNil(t, a.TxRunner)
}

func TestNewRejectsBadPhonePattern(t *testing.T) {
	cfg := config.Load()
	cfg.PhonePattern = "([0-9"

	_, err := New(cfg, nil, notify.Nop{})

	assert.ErrorContains(t, err, "PHONE_PATTERN")
}
