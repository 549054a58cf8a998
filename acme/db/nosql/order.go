package nosql

import (
	"context"
	"encoding/json"
	"time"

	nosqlDB "github.com/smallstep/nosql"

	"github.com/certsecure/acmed/acme"
)

// dbOrder is the persisted form of an ACME order. AccountID holds the
// resolved primary key of the owning account; callers always supply the
// account by name.
type dbOrder struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	AccountID   string            `json:"account_id"`
	Identifiers []acme.Identifier `json:"identifiers"`
	NotBefore   int64             `json:"notbefore"`
	NotAfter    int64             `json:"notafter"`
	Expires     int64             `json:"expires,omitempty"`
	StatusID    int64             `json:"status_id"`
	CreatedAt   time.Time         `json:"createdAt"`
}

func (dbo *dbOrder) clone() *dbOrder {
	nu := *dbo
	return &nu
}

func (dbo *dbOrder) fields(db *DB) acme.Record {
	rec := acme.Record{
		"id":          dbo.ID,
		"name":        dbo.Name,
		"account_id":  dbo.AccountID,
		"identifiers": dbo.Identifiers,
		"notbefore":   dbo.NotBefore,
		"notafter":    dbo.NotAfter,
		"expires":     dbo.Expires,
		"created_at":  dbo.CreatedAt,
	}
	for k, v := range db.statusFields(dbo.StatusID) {
		rec[k] = v
	}
	return rec
}

func unmarshalOrderFields(db *DB, data []byte) (acme.Record, error) {
	dbo := new(dbOrder)
	if err := json.Unmarshal(data, dbo); err != nil {
		return nil, err
	}
	return dbo.fields(db), nil
}

// getDBOrder retrieves and unmarshals a dbOrder.
func (db *DB) getDBOrder(_ context.Context, id string) (*dbOrder, error) {
	data, err := db.db.Get(orderTable, []byte(id))
	if nosqlDB.IsErrNotFound(err) {
		return nil, acme.NewError(acme.ErrorRecordNotFoundType, "order %s not found", id)
	} else if err != nil {
		return nil, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error loading order %s", id)
	}
	dbo := new(dbOrder)
	if err := json.Unmarshal(data, dbo); err != nil {
		return nil, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error unmarshaling order %s", id)
	}
	return dbo, nil
}

// OrderAdd creates an order owned by the account referenced by name. A
// missing account fails with a dangling-reference error before anything is
// written. The status defaults to pending.
func (db *DB) OrderAdd(ctx context.Context, o *acme.Order) (string, error) {
	if err := checkDeadline(ctx); err != nil {
		return "", err
	}
	if o.Name == "" {
		return "", acme.NewError(acme.ErrorStoreUnavailableType, "order name cannot be empty")
	}
	accountID, ok, err := db.nameToID(accountByNameTable, o.Account)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", acme.NewError(acme.ErrorDanglingReferenceType, "account %s referenced by order %s not found", o.Account, o.Name)
	}

	status := o.Status
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
	dbo := &dbOrder{
		ID:          id,
		Name:        o.Name,
		AccountID:   accountID,
		Identifiers: o.Identifiers,
		NotBefore:   o.NotBefore,
		NotAfter:    o.NotAfter,
		Expires:     o.Expires,
		StatusID:    statusID,
		CreatedAt:   acme.SystemClock.Now(),
	}
	if err := db.setNameIndex(orderByNameTable, o.Name, id); err != nil {
		return "", err
	}
	if err := db.save(ctx, id, dbo, nil, "order", orderTable); err != nil {
		db.db.Del(orderByNameTable, []byte(o.Name))
		return "", err
	}
	db.logger.Debug("order created", "name", o.Name, "id", id, "account", o.Account)
	return id, nil
}

// OrderUpdate merges the supplied fields over the order addressed by name.
// Identifiers are immutable after creation; a supplied status name is
// revalidated against the registry.
func (db *DB) OrderUpdate(ctx context.Context, o *acme.Order) error {
	if err := checkDeadline(ctx); err != nil {
		return err
	}
	id, ok, err := db.nameToID(orderByNameTable, o.Name)
	if err != nil {
		return err
	}
	if !ok {
		return acme.NewError(acme.ErrorRecordNotFoundType, "order %s not found", o.Name)
	}
	old, err := db.getDBOrder(ctx, id)
	if err != nil {
		return err
	}

	nu := old.clone()
	if o.Status != "" {
		statusID, err := db.statuses.resolve(o.Status)
		if err != nil {
			return err
		}
		nu.StatusID = statusID
	}
	if o.Expires != 0 {
		nu.Expires = o.Expires
	}
	if err := db.save(ctx, id, nu, old, "order", orderTable); err != nil {
		return err
	}
	db.logger.Debug("order updated", "name", o.Name, "status", string(o.Status))
	return nil
}

// OrderLookup returns the first order whose column matches the pattern,
// expanded with its status and account context, or an empty record.
func (db *DB) OrderLookup(ctx context.Context, column, pattern string, projection []string) (acme.Record, error) {
	return db.lookup(ctx, orderPipeline, column, pattern, projection)
}

// OrdersNonTerminalSearch returns the orders matching the pattern whose
// status has advanced beyond invalid, with their account context joined.
func (db *DB) OrdersNonTerminalSearch(ctx context.Context, column, pattern string, projection []string) ([]acme.Record, error) {
	rows, err := db.search(ctx, orderPipeline, column, pattern, nil)
	if err != nil {
		return nil, err
	}
	out := []acme.Record{}
	for _, row := range rows {
		if sid, ok := row["status__id"].(int64); ok && sid > 1 {
			out = append(out, project(row, projection))
		}
	}
	return out, nil
}

// orderPipeline joins the owning account under the "account" prefix.
var orderPipeline = &pipeline{
	entity: "order",
	table:  orderTable,
	index:  orderByNameTable,
	leaf:   unmarshalOrderFields,
	hops: []hop{
		{prefix: "account", idField: "account_id", table: accountTable, unmarshal: unmarshalAccountFields},
	},
	routes: map[string]string{
		"status__id":          "",
		"status__name":        "",
		"account__id":         "account",
		"account__name":       "account",
		"account__contact":    "account",
		"account__jwk":        "account",
		"account__alg":        "account",
		"account__eab_kid":    "account",
		"account__created_at": "account",
	},
}
