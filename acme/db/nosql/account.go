package nosql

import (
	"context"
	"crypto"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"time"

	nosqlDB "github.com/smallstep/nosql"
	"go.step.sm/crypto/jose"

	"github.com/certsecure/acmed/acme"
)

// dbAccount is the persisted form of an ACME account.
type dbAccount struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	JWK       string    `json:"jwk"`
	Alg       string    `json:"alg"`
	Contact   []string  `json:"contact,omitempty"`
	EabKid    string    `json:"eab_kid"`
	CreatedAt time.Time `json:"createdAt"`
}

func (dba *dbAccount) clone() *dbAccount {
	nu := *dba
	return &nu
}

func (dba *dbAccount) fields() acme.Record {
	return acme.Record{
		"id":         dba.ID,
		"name":       dba.Name,
		"jwk":        dba.JWK,
		"alg":        dba.Alg,
		"contact":    dba.Contact,
		"eab_kid":    dba.EabKid,
		"created_at": dba.CreatedAt,
	}
}

func unmarshalAccountFields(_ *DB, data []byte) (acme.Record, error) {
	dba := new(dbAccount)
	if err := json.Unmarshal(data, dba); err != nil {
		return nil, err
	}
	return dba.fields(), nil
}

// keyToID produces the upsert key for the account's public-key material: the
// RFC 7638 thumbprint when the JWK parses, and a digest of the raw bytes
// otherwise, so opaque key blobs still dedupe on exact equality.
func keyToID(jwk string) string {
	var key jose.JSONWebKey
	if err := json.Unmarshal([]byte(jwk), &key); err == nil && key.Key != nil {
		if kid, err := key.Thumbprint(crypto.SHA256); err == nil {
			return base64.RawURLEncoding.EncodeToString(kid)
		}
	}
	sum := sha256.Sum256([]byte(jwk))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// getDBAccount retrieves and unmarshals a dbAccount.
func (db *DB) getDBAccount(_ context.Context, id string) (*dbAccount, error) {
	data, err := db.db.Get(accountTable, []byte(id))
	if nosqlDB.IsErrNotFound(err) {
		return nil, acme.NewError(acme.ErrorRecordNotFoundType, "account %s not found", id)
	} else if err != nil {
		return nil, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error loading account %s", id)
	}
	dba := new(dbAccount)
	if err := json.Unmarshal(data, dba); err != nil {
		return nil, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error unmarshaling account %s", id)
	}
	return dba, nil
}

// AccountAdd creates or updates an account. The upsert key is the account's
// public-key material: when a matching account exists, only the supplied
// fields are merged into it and its original name is kept. Returns the
// resulting account name and whether a new record was created.
func (db *DB) AccountAdd(ctx context.Context, acc *acme.Account) (string, bool, error) {
	if err := checkDeadline(ctx); err != nil {
		return "", false, err
	}
	if acc.Name == "" || acc.JWK == "" {
		return "", false, acme.NewError(acme.ErrorStoreUnavailableType, "account name and jwk cannot be empty")
	}

	kid := keyToID(acc.JWK)
	if id, ok, err := db.nameToID(accountByKeyIDTable, kid); err != nil {
		return "", false, err
	} else if ok {
		old, err := db.getDBAccount(ctx, id)
		if err != nil {
			return "", false, err
		}
		nu := old.clone()
		if acc.Alg != "" {
			nu.Alg = acc.Alg
		}
		if acc.Contact != nil {
			nu.Contact = acc.Contact
		}
		if acc.EabKid != "" {
			nu.EabKid = acc.EabKid
		}
		if err := db.save(ctx, id, nu, old, "account", accountTable); err != nil {
			return "", false, err
		}
		db.logger.Debug("account merged", "name", old.Name, "id", id)
		return old.Name, false, nil
	}

	id, err := acme.RandID()
	if err != nil {
		return "", false, err
	}
	dba := &dbAccount{
		ID:        id,
		Name:      acc.Name,
		JWK:       acc.JWK,
		Alg:       acc.Alg,
		Contact:   acc.Contact,
		EabKid:    acc.EabKid,
		CreatedAt: acme.SystemClock.Now(),
	}
	if err := db.setNameIndex(accountByNameTable, acc.Name, id); err != nil {
		return "", false, err
	}
	if err := db.setNameIndex(accountByKeyIDTable, kid, id); err != nil {
		db.db.Del(accountByNameTable, []byte(acc.Name))
		return "", false, err
	}
	if err := db.save(ctx, id, dba, nil, "account", accountTable); err != nil {
		db.db.Del(accountByNameTable, []byte(acc.Name))
		db.db.Del(accountByKeyIDTable, []byte(kid))
		return "", false, err
	}
	db.logger.Debug("account created", "name", acc.Name, "id", id)
	return acc.Name, true, nil
}

// AccountUpdate merges the supplied fields over the account addressed by
// name and returns its primary key. Absent fields retain prior values.
func (db *DB) AccountUpdate(ctx context.Context, acc *acme.Account) (string, error) {
	if err := checkDeadline(ctx); err != nil {
		return "", err
	}
	id, ok, err := db.nameToID(accountByNameTable, acc.Name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", acme.NewError(acme.ErrorRecordNotFoundType, "account %s not found", acc.Name)
	}
	old, err := db.getDBAccount(ctx, id)
	if err != nil {
		return "", err
	}

	nu := old.clone()
	if acc.Alg != "" {
		nu.Alg = acc.Alg
	}
	if acc.Contact != nil {
		nu.Contact = acc.Contact
	}
	if acc.EabKid != "" {
		nu.EabKid = acc.EabKid
	}
	kidChanged := acc.JWK != "" && acc.JWK != old.JWK
	if kidChanged {
		nu.JWK = acc.JWK
		if err := db.setNameIndex(accountByKeyIDTable, keyToID(acc.JWK), id); err != nil {
			return "", err
		}
	}
	if err := db.save(ctx, id, nu, old, "account", accountTable); err != nil {
		if kidChanged {
			db.db.Del(accountByKeyIDTable, []byte(keyToID(acc.JWK)))
		}
		return "", err
	}
	if kidChanged {
		db.db.Del(accountByKeyIDTable, []byte(keyToID(old.JWK)))
	}
	db.logger.Debug("account updated", "name", acc.Name, "id", id)
	return id, nil
}

// AccountLookup returns the first account whose column matches the pattern,
// or an empty record. Name and id addressing is exact.
func (db *DB) AccountLookup(ctx context.Context, column, pattern string) (acme.Record, error) {
	return db.lookup(ctx, accountPipeline, column, pattern, nil)
}

// AccountDelete removes the account addressed by name. Deleting an absent
// account is not an error; the result is simply false.
func (db *DB) AccountDelete(ctx context.Context, name string) (bool, error) {
	if err := checkDeadline(ctx); err != nil {
		return false, err
	}
	id, ok, err := db.nameToID(accountByNameTable, name)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	old, err := db.getDBAccount(ctx, id)
	if err == nil {
		db.db.Del(accountByKeyIDTable, []byte(keyToID(old.JWK)))
	}
	if err := db.db.Del(accountTable, []byte(id)); err != nil {
		return false, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error deleting account %s", name)
	}
	if err := db.db.Del(accountByNameTable, []byte(name)); err != nil {
		return false, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error deleting account index %s", name)
	}
	db.logger.Debug("account deleted", "name", name, "id", id)
	return true, nil
}

// AccountJWKLoad returns the account's key material as a flattened record of
// JWK members plus the signing algorithm. An unknown account or an
// unparseable key yields an empty record.
func (db *DB) AccountJWKLoad(ctx context.Context, name string) (acme.Record, error) {
	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}
	id, ok, err := db.nameToID(accountByNameTable, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return acme.Record{}, nil
	}
	dba, err := db.getDBAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	return jwkRecord(db, dba.JWK, dba.Alg), nil
}

// jwkRecord flattens a serialized JWK into record fields and attaches alg.
func jwkRecord(db *DB, jwk, alg string) acme.Record {
	var key jose.JSONWebKey
	if err := json.Unmarshal([]byte(jwk), &key); err != nil || key.Key == nil {
		db.logger.Warn("stored jwk does not parse", "error", err)
		return acme.Record{}
	}
	rec := acme.Record{}
	if err := json.Unmarshal([]byte(jwk), (*map[string]interface{})(&rec)); err != nil {
		return acme.Record{}
	}
	rec["alg"] = alg
	return rec
}

// accountPipeline has no hops: accounts are the root of the reference graph.
var accountPipeline = &pipeline{
	entity: "account",
	table:  accountTable,
	index:  accountByNameTable,
	leaf:   unmarshalAccountFields,
}
