package nosql

import (
	"context"
	"testing"

	"github.com/smallstep/assert"
	"github.com/stretchr/testify/require"

	"github.com/certsecure/acmed/acme"
	"github.com/certsecure/acmed/db"
)

func TestDB_HousekeepingAdd(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	name, created, err := d.HousekeepingAdd(ctx, "cleanup_report", "weekly")
	assert.FatalError(t, err)
	assert.True(t, created)
	assert.Equals(t, name, "cleanup_report")

	value, ok, err := d.HousekeepingGet(ctx, "cleanup_report")
	assert.FatalError(t, err)
	assert.True(t, ok)
	assert.Equals(t, value, "weekly")

	// Upsert: second add overwrites and reports created=false.
	_, created, err = d.HousekeepingAdd(ctx, "cleanup_report", "daily")
	assert.FatalError(t, err)
	assert.False(t, created)

	value, ok, err = d.HousekeepingGet(ctx, "cleanup_report")
	assert.FatalError(t, err)
	assert.True(t, ok)
	assert.Equals(t, value, "daily")

	_, ok, err = d.HousekeepingGet(ctx, "missing")
	assert.FatalError(t, err)
	assert.False(t, ok)
}

func TestDB_DBVersionGet(t *testing.T) {
	d := newTestDB(t)

	version, updateRef, err := d.DBVersionGet(context.Background())
	assert.FatalError(t, err)
	assert.Equals(t, version, Version)
	assert.Equals(t, updateRef, UpdateRef)
}

func TestDB_SchemaReconcile_current(t *testing.T) {
	d := newTestDB(t)

	state, err := d.SchemaReconcile(context.Background())
	assert.FatalError(t, err)
	assert.Equals(t, state, acme.SchemaCurrent)
}

func TestDB_SchemaReconcile_mismatch(t *testing.T) {
	mem := db.NewMemDB()
	d, err := New(mem, discardLogger())
	assert.FatalError(t, err)
	ctx := context.Background()

	seedChain(t, d)

	// Age the persisted version to force a reconciliation.
	_, _, err = d.HousekeepingAdd(ctx, "dbversion", "0.23")
	assert.FatalError(t, err)

	state, err := d.SchemaReconcile(ctx)
	assert.FatalError(t, err)
	assert.Equals(t, state, acme.SchemaCurrent)

	// The version is rewritten and the data survives the step rewrites.
	version, _, err := d.DBVersionGet(ctx)
	assert.FatalError(t, err)
	assert.Equals(t, version, Version)

	rec, err := d.ChallengeLookup(ctx, "name", "chal-1", nil)
	assert.FatalError(t, err)
	assert.Equals(t, rec["authorization__order__account__name"], "alice")

	// Idempotent: a second run is a no-op.
	state, err = d.SchemaReconcile(ctx)
	assert.FatalError(t, err)
	assert.Equals(t, state, acme.SchemaCurrent)
}

func TestDB_SchemaReconcile_stepFailure(t *testing.T) {
	mem := db.NewMemDB()
	d, err := New(mem, discardLogger())
	assert.FatalError(t, err)
	ctx := context.Background()

	_, _, err = d.HousekeepingAdd(ctx, "dbversion", "0.23")
	assert.FatalError(t, err)

	// Plant a corrupt account so the account step fails.
	require.NoError(t, mem.Set(accountTable, []byte("bad"), []byte("{not-json")))

	state, err := d.SchemaReconcile(ctx)
	require.Error(t, err)
	require.True(t, acme.IsErrorType(err, acme.ErrorSchemaMismatchType))
	assert.Equals(t, state, acme.SchemaMismatched)

	// The old version stays persisted so the next startup retries.
	version, _, err := d.DBVersionGet(ctx)
	assert.FatalError(t, err)
	assert.Equals(t, version, "0.23")
}
