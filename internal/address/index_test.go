package address

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/emsv/geovisor/internal/geospatial"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestBuildEntries(t *testing.T) {
	entries := BuildEntries(Mapping{
		"Calle Mayor": {"5": "REF123", "7 ": "REF124"},
		"Gran Vía":    {"1": "REF200"},
		"Vacía":       {},
	})

	assert.Equal(t, []Entry{
		{StreetNorm: "MAYOR", NumberNorm: "5", Reference: "REF123"},
		{StreetNorm: "MAYOR", NumberNorm: "7", Reference: "REF124"},
		{StreetNorm: "GRAN VIA", NumberNorm: "1", Reference: "REF200"},
	}, entries)
}

func TestBuildEntries_CollisionLastWins(t *testing.T) {
	entries := BuildEntries(Mapping{
		"CALLE MAYOR": {"5": "FIRST"},
		"Mayor":       {"5": "SECOND"},
	})

	require.Len(t, entries, 1)
	assert.Equal(t, Entry{StreetNorm: "MAYOR", NumberNorm: "5", Reference: "SECOND"}, entries[0])
}

func TestBuildEntries_SameReferenceManyVariants(t *testing.T) {
	entries := BuildEntries(Mapping{
		"Calle Mayor":  {"5": "REF123"},
		"Calle Mayor ": {"05": "REF123"},
	})
	assert.Len(t, entries, 2)
}

func TestIndex_Replace(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "address_index"`).WillReturnResult(pgxmock.NewResult("DELETE", 9))
	mock.ExpectCopyFrom(pgx.Identifier{"address_index"}, []string{"street_norm", "number_norm", "reference"}).
		WillReturnResult(2)
	mock.ExpectCommit()

	ix := NewIndex(mock, "address_index")
	n, err := ix.Replace(context.Background(), []Entry{
		{StreetNorm: "MAYOR", NumberNorm: "5", Reference: "REF123"},
		{StreetNorm: "MAYOR", NumberNorm: "7", Reference: "REF124"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIndex_ReplaceEmptyClearsTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "address_index"`).WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectCommit()

	n, err := NewIndex(mock, "address_index").Replace(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIndex_ReplaceCopyErrorRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM").WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectCopyFrom(pgx.Identifier{"address_index"}, []string{"street_norm", "number_norm", "reference"}).
		WillReturnError(fmt.Errorf("connection reset"))
	mock.ExpectRollback()

	_, err = NewIndex(mock, "address_index").Replace(context.Background(), []Entry{{"A", "1", "R"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replace index")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIndex_Lookup(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT reference FROM "address_index" WHERE street_norm = \$1 AND number_norm = \$2 LIMIT 1`).
		WithArgs("MAYOR", "5").
		WillReturnRows(pgxmock.NewRows([]string{"reference"}).AddRow("REF123"))

	ref, err := NewIndex(mock, "address_index").Lookup(context.Background(), "calle  Mayor", " 5")
	require.NoError(t, err)
	assert.Equal(t, "REF123", ref)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIndex_LookupPaddedNumberMisses(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT reference").
		WithArgs("MAYOR", "05").
		WillReturnRows(pgxmock.NewRows([]string{"reference"}))

	_, err = NewIndex(mock, "address_index").Lookup(context.Background(), "Mayor", "05 ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, geospatial.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIndex_LookupQueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT reference").
		WithArgs("MAYOR", "5").
		WillReturnError(fmt.Errorf("relation does not exist"))

	_, err = NewIndex(mock, "address_index").Lookup(context.Background(), "Mayor", "5")
	require.Error(t, err)
	assert.False(t, errors.Is(err, geospatial.ErrNotFound))
	assert.Contains(t, err.Error(), "address: lookup")
	assert.NoError(t, mock.ExpectationsWereMet())
}
