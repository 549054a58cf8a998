// Package nosql implements the acmed storage engine on top of the
// schema-less key/value stores supported by smallstep/nosql. Entities are
// JSON documents keyed by a store-assigned ID, with name-to-ID index tables
// emulating unique-name addressing, and a declarative join pipeline
// answering composite queries across entity kinds.
package nosql

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
	nosqlDB "github.com/smallstep/nosql"

	"github.com/certsecure/acmed/acme"
)

var (
	accountTable          = []byte("acme_accounts")
	accountByNameTable    = []byte("acme_account_name_index")
	accountByKeyIDTable   = []byte("acme_keyID_accountID_index")
	orderTable            = []byte("acme_orders")
	orderByNameTable      = []byte("acme_order_name_index")
	authzTable            = []byte("acme_authzs")
	authzByNameTable      = []byte("acme_authz_name_index")
	challengeTable        = []byte("acme_challenges")
	challengeByNameTable  = []byte("acme_challenge_name_index")
	certTable             = []byte("acme_certs")
	certByNameTable       = []byte("acme_cert_name_index")
	nonceTable            = []byte("nonces")
	statusTable           = []byte("acme_statuses")
	housekeepingTable     = []byte("housekeeping")
	cliAccountTable       = []byte("cli_accounts")
	cliAccountByNameTable = []byte("cli_account_name_index")
	caHandlerTable        = []byte("ca_handler_registrations")
)

// DB is a struct that implements the acme.DB interface.
type DB struct {
	db       nosqlDB.DB
	logger   *slog.Logger
	statuses *statusRegistry
}

var _ acme.DB = (*DB)(nil)

// New configures and returns a storage engine backed by the given nosql DB.
// It creates the entity tables, seeds the status registry and the persisted
// schema version (both upsert-if-absent, so repeated startup is a no-op).
func New(db nosqlDB.DB, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tables := [][]byte{
		accountTable, accountByNameTable, accountByKeyIDTable,
		orderTable, orderByNameTable,
		authzTable, authzByNameTable,
		challengeTable, challengeByNameTable,
		certTable, certByNameTable,
		nonceTable, statusTable, housekeepingTable,
		cliAccountTable, cliAccountByNameTable, caHandlerTable,
	}
	for _, b := range tables {
		if err := db.CreateTable(b); err != nil {
			return nil, errors.Wrapf(err, "error creating table %s", string(b))
		}
	}

	d := &DB{db: db, logger: logger}
	if err := d.seedStatuses(); err != nil {
		return nil, err
	}
	reg, err := d.loadStatuses()
	if err != nil {
		return nil, err
	}
	d.statuses = reg

	if err := d.seedVersion(); err != nil {
		return nil, err
	}
	return d, nil
}

// save writes the new data to the database. With old == nil it only succeeds
// if the key is absent; otherwise it only succeeds if the stored document
// still equals old, so a read-modify-write never clobbers a concurrent
// update and never leaves partial fields behind.
func (db *DB) save(_ context.Context, id string, nu, old interface{}, typ string, table []byte) error {
	var (
		err  error
		newB []byte
	)
	if nu == nil {
		newB = nil
	} else {
		newB, err = json.Marshal(nu)
		if err != nil {
			return acme.WrapError(acme.ErrorStoreUnavailableType, err, "error marshaling acme %s", typ)
		}
	}
	var oldB []byte
	if old == nil {
		oldB = nil
	} else {
		oldB, err = json.Marshal(old)
		if err != nil {
			return acme.WrapError(acme.ErrorStoreUnavailableType, err, "error marshaling old acme %s", typ)
		}
	}

	_, swapped, err := db.db.CmpAndSwap(table, []byte(id), oldB, newB)
	switch {
	case err != nil:
		return acme.WrapError(acme.ErrorStoreUnavailableType, err, "error saving acme %s", typ)
	case !swapped:
		return acme.NewError(acme.ErrorStoreUnavailableType,
			"error saving acme %s; changed since last read", typ)
	default:
		return nil
	}
}

// checkDeadline fails with a timeout error when the operation's context has
// already expired. It is consulted before every write so an expired deadline
// never results in a half-written record.
func checkDeadline(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return acme.WrapError(acme.ErrorTimeoutType, err, "operation aborted by deadline")
	}
	return nil
}

// nameToID resolves a unique name into the entity's primary key via its
// index table. The second return value reports whether the name exists.
func (db *DB) nameToID(index []byte, name string) (string, bool, error) {
	id, err := db.db.Get(index, []byte(name))
	if nosqlDB.IsErrNotFound(err) {
		return "", false, nil
	} else if err != nil {
		return "", false, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error loading index %s", string(index))
	}
	return string(id), true, nil
}

// setNameIndex claims a unique name for the given ID. Claiming an
// already-taken name fails.
func (db *DB) setNameIndex(index []byte, name, id string) error {
	_, swapped, err := db.db.CmpAndSwap(index, []byte(name), nil, []byte(id))
	switch {
	case err != nil:
		return acme.WrapError(acme.ErrorStoreUnavailableType, err, "error setting index %s", string(index))
	case !swapped:
		return acme.NewError(acme.ErrorStoreUnavailableType, "name %s already exists", name)
	default:
		return nil
	}
}

// matchesPattern reports whether the flattened field value contains the
// pattern, case-insensitively. Non-string values are compared through their
// JSON form, mirroring how the documents are persisted.
func matchesPattern(value interface{}, pattern string) bool {
	var s string
	switch v := value.(type) {
	case nil:
		s = ""
	case string:
		s = v
	case acme.Status:
		s = string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return false
		}
		s = string(b)
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(pattern))
}

// project applies a caller projection, defaulting to the full record.
func project(r acme.Record, projection []string) acme.Record {
	if len(projection) == 0 {
		return r
	}
	return r.Project(projection)
}
