package nosql

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	nosqlDB "github.com/smallstep/nosql"

	"github.com/certsecure/acmed/acme"
)

// dbAuthz is the persisted form of an ACME authorization. OrderID holds the
// resolved primary key of the owning order.
type dbAuthz struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OrderID   string    `json:"order_id"`
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	Token     string    `json:"token"`
	Expires   int64     `json:"expires,omitempty"`
	StatusID  int64     `json:"status_id"`
	CreatedAt time.Time `json:"createdAt"`
}

func (dba *dbAuthz) clone() *dbAuthz {
	nu := *dba
	return &nu
}

func (dba *dbAuthz) fields(db *DB) acme.Record {
	rec := acme.Record{
		"id":         dba.ID,
		"name":       dba.Name,
		"order_id":   dba.OrderID,
		"type":       dba.Type,
		"value":      dba.Value,
		"token":      dba.Token,
		"expires":    dba.Expires,
		"created_at": dba.CreatedAt,
	}
	for k, v := range db.statusFields(dba.StatusID) {
		rec[k] = v
	}
	return rec
}

func unmarshalAuthzFields(db *DB, data []byte) (acme.Record, error) {
	dba := new(dbAuthz)
	if err := json.Unmarshal(data, dba); err != nil {
		return nil, err
	}
	return dba.fields(db), nil
}

// getDBAuthz retrieves and unmarshals a dbAuthz.
func (db *DB) getDBAuthz(_ context.Context, id string) (*dbAuthz, error) {
	data, err := db.db.Get(authzTable, []byte(id))
	if nosqlDB.IsErrNotFound(err) {
		return nil, acme.NewError(acme.ErrorRecordNotFoundType, "authorization %s not found", id)
	} else if err != nil {
		return nil, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error loading authorization %s", id)
	}
	dba := new(dbAuthz)
	if err := json.Unmarshal(data, dba); err != nil {
		return nil, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error unmarshaling authorization %s", id)
	}
	return dba, nil
}

// AuthorizationAdd creates an authorization owned by the order referenced by
// name. A missing order fails with a dangling-reference error before
// anything is written. The status defaults to pending.
func (db *DB) AuthorizationAdd(ctx context.Context, az *acme.Authorization) (string, error) {
	if err := checkDeadline(ctx); err != nil {
		return "", err
	}
	if az.Name == "" {
		return "", acme.NewError(acme.ErrorStoreUnavailableType, "authorization name cannot be empty")
	}
	orderID, ok, err := db.nameToID(orderByNameTable, az.Order)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", acme.NewError(acme.ErrorDanglingReferenceType, "order %s referenced by authorization %s not found", az.Order, az.Name)
	}

	status := az.Status
	if status == "" {
		status = acme.StatusPending
	}
	statusID, err := db.statuses.resolve(status)
	if err != nil {
		return "", err
	}

	id, err := acme.RandID()
	if err != nil {
		return "", err
	}
	dba := &dbAuthz{
		ID:        id,
		Name:      az.Name,
		OrderID:   orderID,
		Type:      az.Type,
		Value:     az.Value,
		Token:     az.Token,
		Expires:   az.Expires,
		StatusID:  statusID,
		CreatedAt: acme.SystemClock.Now(),
	}
	if err := db.setNameIndex(authzByNameTable, az.Name, id); err != nil {
		return "", err
	}
	if err := db.save(ctx, id, dba, nil, "authz", authzTable); err != nil {
		db.db.Del(authzByNameTable, []byte(az.Name))
		return "", err
	}
	db.logger.Debug("authorization created", "name", az.Name, "id", id, "order", az.Order)
	return id, nil
}

// AuthorizationUpdate merges the supplied status, token and expiry over the
// authorization addressed by name and returns its ID.
func (db *DB) AuthorizationUpdate(ctx context.Context, az *acme.Authorization) (string, error) {
	if err := checkDeadline(ctx); err != nil {
		return "", err
	}
	id, ok, err := db.nameToID(authzByNameTable, az.Name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", acme.NewError(acme.ErrorRecordNotFoundType, "authorization %s not found", az.Name)
	}
	old, err := db.getDBAuthz(ctx, id)
	if err != nil {
		return "", err
	}

	nu := old.clone()
	if az.Status != "" {
		statusID, err := db.statuses.resolve(az.Status)
		if err != nil {
			return "", err
		}
		nu.StatusID = statusID
	}
	if az.Token != "" {
		nu.Token = az.Token
	}
	if az.Expires != 0 {
		nu.Expires = az.Expires
	}
	if err := db.save(ctx, id, nu, old, "authz", authzTable); err != nil {
		return "", err
	}
	db.logger.Debug("authorization updated", "name", az.Name, "status", string(az.Status))
	return id, nil
}

// AuthorizationLookup returns the first authorization whose column matches
// the pattern, expanded with its status, order and account context, or an
// empty record.
func (db *DB) AuthorizationLookup(ctx context.Context, column, pattern string, projection []string) (acme.Record, error) {
	return db.lookup(ctx, authzPipeline, column, pattern, projection)
}

// AuthorizationsSearch returns all authorizations whose column matches the
// pattern, with their order and account context joined.
func (db *DB) AuthorizationsSearch(ctx context.Context, column, pattern string, projection []string) ([]acme.Record, error) {
	return db.search(ctx, authzPipeline, column, pattern, projection)
}

// AuthorizationsExpiredSearch returns the matching authorizations whose
// status is not expired. The expires column compares by exact timestamp
// equality; every other column falls back to pattern matching.
func (db *DB) AuthorizationsExpiredSearch(ctx context.Context, column, pattern string, projection []string) ([]acme.Record, error) {
	rows, err := db.search(ctx, authzPipeline, column, pattern, nil)
	if err != nil {
		return nil, err
	}
	out := []acme.Record{}
	for _, row := range rows {
		if s, _ := row["status__name"].(string); s == string(acme.StatusExpired) {
			continue
		}
		if column == "expires" {
			ts, err := strconv.ParseInt(pattern, 10, 64)
			if err != nil {
				return []acme.Record{}, nil
			}
			if exp, ok := row["expires"].(int64); !ok || exp != ts {
				continue
			}
		}
		out = append(out, project(row, projection))
	}
	return out, nil
}

// authzPipeline joins the owning order and, through it, the owning account.
var authzPipeline = &pipeline{
	entity: "authz",
	table:  authzTable,
	index:  authzByNameTable,
	leaf:   unmarshalAuthzFields,
	hops: []hop{
		{prefix: "order", idField: "order_id", table: orderTable, unmarshal: unmarshalOrderFields},
		{prefix: "order__account", idField: "order__account_id", table: accountTable, unmarshal: unmarshalAccountFields},
	},
	routes: map[string]string{
		"status__id":              "",
		"status__name":            "",
		"order__id":               "order",
		"order__name":             "order",
		"order__status__id":       "order",
		"order__status__name":     "order",
		"order__identifiers":      "order",
		"order__expires":          "order",
		"order__account__id":      "order__account",
		"order__account__name":    "order__account",
		"order__account__contact": "order__account",
		"order__account__jwk":     "order__account",
		"order__account__alg":     "order__account",
		"order__account__eab_kid": "order__account",
	},
}
