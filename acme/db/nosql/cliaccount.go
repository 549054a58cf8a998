package nosql

import (
	"context"
	"encoding/json"
	"time"

	nosqlDB "github.com/smallstep/nosql"

	"github.com/certsecure/acmed/acme"
)

// dbCliAccount is the persisted form of a command-line client account.
// Admin flags are always supplied in full on add, so they overwrite rather
// than merge.
type dbCliAccount struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	JWK              string    `json:"jwk"`
	Contact          []string  `json:"contact,omitempty"`
	CliAdmin         bool      `json:"cliadmin"`
	ReportAdmin      bool      `json:"reportadmin"`
	CertificateAdmin bool      `json:"certificateadmin"`
	CreatedAt        time.Time `json:"createdAt"`
}

func (dba *dbCliAccount) clone() *dbCliAccount {
	nu := *dba
	return &nu
}

func (dba *dbCliAccount) fields() acme.Record {
	return acme.Record{
		"id":               dba.ID,
		"name":             dba.Name,
		"jwk":              dba.JWK,
		"contact":          dba.Contact,
		"cliadmin":         dba.CliAdmin,
		"reportadmin":      dba.ReportAdmin,
		"certificateadmin": dba.CertificateAdmin,
		"created_at":       dba.CreatedAt,
	}
}

// getDBCliAccount retrieves and unmarshals a dbCliAccount.
func (db *DB) getDBCliAccount(_ context.Context, id string) (*dbCliAccount, error) {
	data, err := db.db.Get(cliAccountTable, []byte(id))
	if nosqlDB.IsErrNotFound(err) {
		return nil, acme.NewError(acme.ErrorRecordNotFoundType, "cli account %s not found", id)
	} else if err != nil {
		return nil, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error loading cli account %s", id)
	}
	dba := new(dbCliAccount)
	if err := json.Unmarshal(data, dba); err != nil {
		return nil, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error unmarshaling cli account %s", id)
	}
	return dba, nil
}

// CliAccountAdd creates or updates a cli account, keyed by name. Contact and
// key material merge over the stored document; the admin flags overwrite.
// Returns the account ID and whether a new record was created.
func (db *DB) CliAccountAdd(ctx context.Context, acc *acme.CliAccount) (string, bool, error) {
	if err := checkDeadline(ctx); err != nil {
		return "", false, err
	}
	if acc.Name == "" {
		return "", false, acme.NewError(acme.ErrorStoreUnavailableType, "cli account name cannot be empty")
	}

	if id, ok, err := db.nameToID(cliAccountByNameTable, acc.Name); err != nil {
		return "", false, err
	} else if ok {
		old, err := db.getDBCliAccount(ctx, id)
		if err != nil {
			return "", false, err
		}
		nu := old.clone()
		if acc.JWK != "" {
			nu.JWK = acc.JWK
		}
		if acc.Contact != nil {
			nu.Contact = acc.Contact
		}
		nu.CliAdmin = acc.CliAdmin
		nu.ReportAdmin = acc.ReportAdmin
		nu.CertificateAdmin = acc.CertificateAdmin
		if err := db.save(ctx, id, nu, old, "cli account", cliAccountTable); err != nil {
			return "", false, err
		}
		db.logger.Debug("cli account merged", "name", acc.Name, "id", id)
		return id, false, nil
	}

	id, err := acme.RandID()
	if err != nil {
		return "", false, err
	}
	dba := &dbCliAccount{
		ID:               id,
		Name:             acc.Name,
		JWK:              acc.JWK,
		Contact:          acc.Contact,
		CliAdmin:         acc.CliAdmin,
		ReportAdmin:      acc.ReportAdmin,
		CertificateAdmin: acc.CertificateAdmin,
		CreatedAt:        acme.SystemClock.Now(),
	}
	if err := db.setNameIndex(cliAccountByNameTable, acc.Name, id); err != nil {
		return "", false, err
	}
	if err := db.save(ctx, id, dba, nil, "cli account", cliAccountTable); err != nil {
		db.db.Del(cliAccountByNameTable, []byte(acc.Name))
		return "", false, err
	}
	db.logger.Debug("cli account created", "name", acc.Name, "id", id)
	return id, true, nil
}

// CliAccountDelete removes the cli account addressed by name. Deleting an
// absent account is not an error; the result is simply false.
func (db *DB) CliAccountDelete(ctx context.Context, name string) (bool, error) {
	if err := checkDeadline(ctx); err != nil {
		return false, err
	}
	id, ok, err := db.nameToID(cliAccountByNameTable, name)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := db.db.Del(cliAccountTable, []byte(id)); err != nil {
		return false, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error deleting cli account %s", name)
	}
	if err := db.db.Del(cliAccountByNameTable, []byte(name)); err != nil {
		return false, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error deleting cli account index %s", name)
	}
	db.logger.Debug("cli account deleted", "name", name, "id", id)
	return true, nil
}

// CliAccountJWKLoad returns the cli account's key material as a flattened
// record of JWK members. Unlike the ACME variant, no signing algorithm is
// attached. An unknown account or an unparseable key yields an empty record.
func (db *DB) CliAccountJWKLoad(ctx context.Context, name string) (acme.Record, error) {
	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}
	id, ok, err := db.nameToID(cliAccountByNameTable, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return acme.Record{}, nil
	}
	dba, err := db.getDBCliAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	rec := acme.Record{}
	if err := json.Unmarshal([]byte(dba.JWK), (*map[string]interface{})(&rec)); err != nil {
		db.logger.Warn("stored cli jwk does not parse", "name", name, "error", err)
		return acme.Record{}, nil
	}
	return rec, nil
}

// CliAccountPermissions returns the admin-flag view of the cli account
// addressed by name, or nil when the account does not exist.
func (db *DB) CliAccountPermissions(ctx context.Context, name string) (*acme.CliPermissions, error) {
	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}
	id, ok, err := db.nameToID(cliAccountByNameTable, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	dba, err := db.getDBCliAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	return &acme.CliPermissions{
		CliAdmin:         dba.CliAdmin,
		ReportAdmin:      dba.ReportAdmin,
		CertificateAdmin: dba.CertificateAdmin,
	}, nil
}

// CliAccountsReport returns every cli account with the fixed report field
// vocabulary.
func (db *DB) CliAccountsReport(ctx context.Context) ([]string, []acme.Record, error) {
	if err := checkDeadline(ctx); err != nil {
		return nil, nil, err
	}
	fields := []string{"id", "name", "jwk", "contact", "created_at", "cliadmin", "reportadmin", "certificateadmin"}
	entries, err := db.db.List(cliAccountTable)
	if err != nil {
		return nil, nil, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error listing cli accounts")
	}
	rows := []acme.Record{}
	for _, e := range entries {
		dba := new(dbCliAccount)
		if err := json.Unmarshal(e.Value, dba); err != nil {
			db.logger.Warn("skipping corrupt document",
				"entity", "cli account", "key", string(e.Key), "error", err)
			continue
		}
		rows = append(rows, dba.fields().Project(fields))
	}
	return fields, rows, nil
}
