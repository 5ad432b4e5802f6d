package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txadmin/internal/sheets"
)

func TestStoreAppendAndList(t *testing.T) {
	s := New()
	ctx := context.Background()
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	rng, err := s.AppendAuditRows(ctx, []sheets.AuditRow{
		{Timestamp: ts, Action: "created", TransactionID: "1"},
		{Timestamp: ts, Action: "created", TransactionID: "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "mem!A1:K2", rng)

	rng, err = s.AppendAuditRows(ctx, []sheets.AuditRow{{Timestamp: ts.AddDate(1, 0, 0), Action: "deleted", TransactionID: "1"}})
	require.NoError(t, err)
	assert.Equal(t, "mem!A3:K3", rng)

	rows, err := s.ListAuditRows(ctx, 2024)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 3, s.Len())
}

func TestStoreFailOnce(t *testing.T) {
	s := New()
	s.Fail = errors.New("quota exceeded")
	row := []sheets.AuditRow{{Action: "created", TransactionID: "1"}}

	_, err := s.AppendAuditRows(context.Background(), row)
	assert.EqualError(t, err, "quota exceeded")
	_, err = s.AppendAuditRows(context.Background(), row)
	assert.NoError(t, err)
}

func TestStoreRejectsEmptyBatch(t *testing.T) {
	_, err := New().AppendAuditRows(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}
