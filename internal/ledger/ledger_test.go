package ledger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/rserved/internal/wire/qap1"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRecordAcceptCreatesSessionRecord(t *testing.T) {
	l := openTestLedger(t)
	l.RecordAccept(1, "127.0.0.1:54321")

	rec, err := l.Get(1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.UCIX)
	assert.Equal(t, "127.0.0.1:54321", rec.PeerAddr)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.Closed)
}

func TestRecordCommandIncrementsCountAndTally(t *testing.T) {
	l := openTestLedger(t)
	l.RecordAccept(2, "127.0.0.1:1")

	l.RecordCommand(2, qap1.CmdEval)
	l.RecordCommand(2, qap1.CmdEval)
	l.RecordCommand(2, qap1.CmdReadFile)

	rec, err := l.Get(2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.CommandLen)

	count, err := l.CommandCount(2, qap1.CmdEval)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	breakdown, err := l.CommandBreakdown(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), breakdown[qap1.CmdEval])
	assert.Equal(t, uint64(1), breakdown[qap1.CmdReadFile])
}

func TestRecordCloseMarksSessionClosed(t *testing.T) {
	l := openTestLedger(t)
	l.RecordAccept(3, "127.0.0.1:1")
	l.RecordClose(3, int32(qap1.RespOK))

	rec, err := l.Get(3)
	require.NoError(t, err)
	assert.True(t, rec.Closed)
	assert.Equal(t, int32(qap1.RespOK), rec.LastStat)
	assert.False(t, rec.ClosedAt.IsZero())
}

func TestListReturnsAllSessions(t *testing.T) {
	l := openTestLedger(t)
	l.RecordAccept(10, "127.0.0.1:1")
	l.RecordAccept(11, "127.0.0.1:2")

	records, err := l.List()
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestGetUnknownSessionIsError(t *testing.T) {
	l := openTestLedger(t)
	_, err := l.Get(999)
	assert.Error(t, err)
}

func TestCommandCountForUnknownCommandIsZero(t *testing.T) {
	l := openTestLedger(t)
	l.RecordAccept(5, "127.0.0.1:1")

	count, err := l.CommandCount(5, qap1.CmdWriteFile)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}
