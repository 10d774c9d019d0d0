package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/stellar-bridge/pkg/logger"
	"github.com/speedrun-hq/stellar-bridge/pkg/models"
)

const account = "GSOURCE"

func TestClaimRejectsReuse(t *testing.T) {
	tr := NewTracker("stellar-testnet", &logger.EmptyLogger{})

	require.NoError(t, tr.Claim(account, 10, models.KindBridgeTransfer))
	tr.Track(account, 10, "hash-a")

	err := tr.Claim(account, 10, models.KindBridgeTransfer)
	require.ErrorIs(t, err, models.ErrProtocol)
	assert.Contains(t, err.Error(), "hash-a")

	// same sequence on another account is independent
	require.NoError(t, tr.Claim("GOTHER", 10, models.KindTransfer))
}

func TestLifecycle(t *testing.T) {
	tr := NewTracker("stellar-testnet", &logger.EmptyLogger{})

	require.NoError(t, tr.Claim(account, 5, models.KindStateRestore))
	tr.Track(account, 5, "restore")
	assert.True(t, tr.MarkConfirmed(account, 5))

	require.NoError(t, tr.Claim(account, 6, models.KindBridgeTransfer))
	tr.Track(account, 6, "main")
	assert.True(t, tr.MarkUnknown(account, 6))

	require.NoError(t, tr.Claim(account, 7, models.KindTrustAdjustment))
	assert.True(t, tr.MarkFailed(account, 7))

	assert.False(t, tr.MarkConfirmed(account, 99))

	records := tr.Records()
	require.Len(t, records, 3)
	assert.Equal(t, []Status{Confirmed, Unknown, Failed}, []Status{records[0].Status, records[1].Status, records[2].Status})
	assert.Equal(t, "restore", records[0].Hash)

	pending := tr.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, uint64(6), pending[0].Sequence)

	highest, ok := tr.Highest(account)
	require.True(t, ok)
	assert.Equal(t, uint64(7), highest)

	_, ok = tr.Highest("GNONE")
	assert.False(t, ok)
}
