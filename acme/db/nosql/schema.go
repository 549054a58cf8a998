package nosql

import (
	"context"

	"github.com/rs/xid"

	"github.com/certsecure/acmed/acme"
)

// Version is the schema version the running code expects. It is persisted
// in the housekeeping table under the dbversion key.
const Version = "0.36"

// dbVersionKey is the housekeeping parameter backing the persisted version.
const dbVersionKey = "dbversion"

// UpdateRef names the operator command that brings an older database up to
// the running version. It is returned with every version probe.
const UpdateRef = "acmed-admin db update"

// seedVersion persists the schema version on first run. An existing version
// is left untouched so reconciliation can detect a mismatch.
func (db *DB) seedVersion() error {
	ctx := context.Background()
	cur, err := db.getDBHousekeeping(ctx, dbVersionKey)
	if err != nil {
		return err
	}
	if cur != nil {
		return nil
	}
	dbh := &dbHousekeeping{
		Name:      dbVersionKey,
		Value:     Version,
		CreatedAt: acme.SystemClock.Now(),
	}
	if err := db.save(ctx, dbVersionKey, dbh, nil, "housekeeping parameter", housekeepingTable); err != nil {
		return err
	}
	db.logger.Info("schema version initialized", "version", Version)
	return nil
}

// DBVersionGet returns the persisted schema version and the operator
// command reference for bringing it up to date.
func (db *DB) DBVersionGet(ctx context.Context) (string, string, error) {
	version, _, err := db.HousekeepingGet(ctx, dbVersionKey)
	if err != nil {
		return "", UpdateRef, err
	}
	return version, UpdateRef, nil
}

// schemaStep is one idempotent reconciliation unit. Steps run in order;
// rerunning an already-applied step is a no-op.
type schemaStep struct {
	name  string
	apply func(ctx context.Context, db *DB) error
}

var schemaSteps = []schemaStep{
	{"status vocabulary", func(_ context.Context, db *DB) error {
		// Late additions to the vocabulary (deactivated, expired, revoked)
		// seed into older databases here; seeding skips existing entries.
		if err := db.seedStatuses(); err != nil {
			return err
		}
		reg, err := db.loadStatuses()
		if err != nil {
			return err
		}
		db.statuses = reg
		return nil
	}},
	{"account eab_kid", func(ctx context.Context, db *DB) error {
		return db.reconcileAccounts(ctx)
	}},
	{"certificate renewal fields", func(ctx context.Context, db *DB) error {
		return db.reconcileCertificates(ctx)
	}},
}

// reconcileAccounts rewrites account documents through the current struct,
// materializing fields older versions did not persist (eab_kid).
func (db *DB) reconcileAccounts(ctx context.Context) error {
	entries, err := db.db.List(accountTable)
	if err != nil {
		return acme.WrapError(acme.ErrorStoreUnavailableType, err, "error listing accounts")
	}
	for _, e := range entries {
		old, err := db.getDBAccount(ctx, string(e.Key))
		if err != nil {
			return err
		}
		if err := db.save(ctx, old.ID, old.clone(), old, "account", accountTable); err != nil {
			return err
		}
	}
	return nil
}

// reconcileCertificates rewrites certificate documents through the current
// struct, materializing renewal_info and header_info on older records.
func (db *DB) reconcileCertificates(ctx context.Context) error {
	entries, err := db.db.List(certTable)
	if err != nil {
		return acme.WrapError(acme.ErrorStoreUnavailableType, err, "error listing certificates")
	}
	for _, e := range entries {
		old, err := db.getDBCert(ctx, string(e.Key))
		if err != nil {
			return err
		}
		if err := db.save(ctx, old.ID, old.clone(), old, "certificate", certTable); err != nil {
			return err
		}
	}
	return nil
}

// SchemaReconcile compares the persisted schema version against the running
// code and, on a mismatch, runs the ordered reconciliation steps before
// rewriting the version. A failing step leaves the old version persisted so
// the next startup retries, and the mismatch is reported rather than fatal.
func (db *DB) SchemaReconcile(ctx context.Context) (acme.SchemaState, error) {
	if err := checkDeadline(ctx); err != nil {
		return acme.SchemaUnknown, err
	}
	persisted, ok, err := db.HousekeepingGet(ctx, dbVersionKey)
	if err != nil {
		return acme.SchemaUnknown, err
	}
	if !ok {
		if err := db.seedVersion(); err != nil {
			return acme.SchemaChecked, err
		}
		return acme.SchemaCurrent, nil
	}
	if persisted == Version {
		return acme.SchemaCurrent, nil
	}

	run := xid.New().String()
	db.logger.Info("schema reconciliation started",
		"run", run, "persisted", persisted, "version", Version)
	for _, step := range schemaSteps {
		if err := step.apply(ctx, db); err != nil {
			db.logger.Warn("schema reconciliation step failed",
				"run", run, "step", step.name, "error", err)
			return acme.SchemaMismatched, acme.WrapError(acme.ErrorSchemaMismatchType, err,
				"schema version %s does not match %s; step %s failed, run %q", persisted, Version, step.name, UpdateRef)
		}
		db.logger.Debug("schema reconciliation step applied", "run", run, "step", step.name)
	}
	if _, _, err := db.HousekeepingAdd(ctx, dbVersionKey, Version); err != nil {
		return acme.SchemaMismatched, acme.WrapError(acme.ErrorSchemaMismatchType, err,
			"schema version %s reconciled but not persisted; run %q", persisted, UpdateRef)
	}
	db.logger.Info("schema reconciliation finished", "run", run, "version", Version)
	return acme.SchemaCurrent, nil
}
