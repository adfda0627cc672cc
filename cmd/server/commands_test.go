package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-ledger/ledger"
)

func TestFilterFlags(t *testing.T) {
	t.Run("financial year with explicit end", func(t *testing.T) {
		f := filterFlags{financialYear: "2025-2026", to: "2025-09-30", status: "Paid"}

		filter, err := f.filter()
		require.NoError(t, err)
		assert.Equal(t, ledger.MustDate("2025-04-01"), filter.Range.From)
		assert.Equal(t, ledger.MustDate("2025-09-30"), filter.Range.To)
		assert.Equal(t, ledger.StatusPaid, filter.Status)
	})

	t.Run("empty flags match everything", func(t *testing.T) {
		filter, err := (&filterFlags{}).filter()
		require.NoError(t, err)
		assert.True(t, filter.Range.IsOpen())
		assert.Empty(t, filter.Status)
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		_, err := (&filterFlags{status: "Overdue"}).filter()
		assert.Error(t, err)
	})

	t.Run("rejects malformed date", func(t *testing.T) {
		_, err := (&filterFlags{from: "01/04/2025"}).filter()
		assert.Error(t, err)
	})
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCmd()

	for _, path := range [][]string{
		{"serve"},
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "version"},
		{"export"},
		{"report", "dashboard"},
		{"report", "overdue"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("db"))
}
