package nosql

import (
	"context"
	"encoding/json"
	"time"

	nosqlDB "github.com/smallstep/nosql"

	"github.com/certsecure/acmed/acme"
)

// dbCAHandler is opaque state registered by an external CA integration.
// Documents are keyed by the registration name; the values are
// handler-defined and never interpreted here.
type dbCAHandler struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Value1    string    `json:"value1"`
	Value2    string    `json:"value2"`
	CreatedAt time.Time `json:"createdAt"`
}

func (dbc *dbCAHandler) clone() *dbCAHandler {
	nu := *dbc
	return &nu
}

func (dbc *dbCAHandler) fields() acme.Record {
	return acme.Record{
		"id":         dbc.ID,
		"name":       dbc.Name,
		"value1":     dbc.Value1,
		"value2":     dbc.Value2,
		"created_at": dbc.CreatedAt,
	}
}

func unmarshalCAHandlerFields(_ *DB, data []byte) (acme.Record, error) {
	dbc := new(dbCAHandler)
	if err := json.Unmarshal(data, dbc); err != nil {
		return nil, err
	}
	return dbc.fields(), nil
}

// CAHandlerAdd creates or updates a CA handler registration, keyed by name.
// On an existing registration both values overwrite. Returns the
// registration ID and whether a new record was created.
func (db *DB) CAHandlerAdd(ctx context.Context, reg *acme.CAHandlerRegistration) (string, bool, error) {
	if err := checkDeadline(ctx); err != nil {
		return "", false, err
	}
	if reg.Name == "" {
		return "", false, acme.NewError(acme.ErrorStoreUnavailableType, "ca handler name cannot be empty")
	}

	old, err := db.getDBCAHandler(ctx, reg.Name)
	if err != nil {
		return "", false, err
	}
	if old != nil {
		nu := old.clone()
		nu.Value1 = reg.Value1
		nu.Value2 = reg.Value2
		if err := db.save(ctx, reg.Name, nu, old, "ca handler", caHandlerTable); err != nil {
			return "", false, err
		}
		db.logger.Debug("ca handler merged", "name", reg.Name, "id", old.ID)
		return old.ID, false, nil
	}

	id, err := acme.RandID()
	if err != nil {
		return "", false, err
	}
	dbc := &dbCAHandler{
		ID:        id,
		Name:      reg.Name,
		Value1:    reg.Value1,
		Value2:    reg.Value2,
		CreatedAt: acme.SystemClock.Now(),
	}
	if err := db.save(ctx, reg.Name, dbc, nil, "ca handler", caHandlerTable); err != nil {
		return "", false, err
	}
	db.logger.Debug("ca handler created", "name", reg.Name, "id", id)
	return id, true, nil
}

// getDBCAHandler retrieves and unmarshals a registration by name. A missing
// registration returns (nil, nil).
func (db *DB) getDBCAHandler(_ context.Context, name string) (*dbCAHandler, error) {
	data, err := db.db.Get(caHandlerTable, []byte(name))
	if nosqlDB.IsErrNotFound(err) {
		return nil, nil
	} else if err != nil {
		return nil, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error loading ca handler %s", name)
	}
	dbc := new(dbCAHandler)
	if err := json.Unmarshal(data, dbc); err != nil {
		return nil, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error unmarshaling ca handler %s", name)
	}
	return dbc, nil
}

// CAHandlerLookup returns the first registration whose column matches the
// pattern, or an empty record. Name and id addressing is exact; documents
// are keyed by name, so id addressing scans the table.
func (db *DB) CAHandlerLookup(ctx context.Context, column, pattern string, projection []string) (acme.Record, error) {
	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}
	switch column {
	case "name":
		dbc, err := db.getDBCAHandler(ctx, pattern)
		if err != nil {
			return nil, err
		}
		if dbc == nil {
			return acme.Record{}, nil
		}
		return project(dbc.fields(), projection), nil
	case "id":
		entries, err := db.db.List(caHandlerTable)
		if err != nil {
			return nil, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error listing ca handlers")
		}
		for _, e := range entries {
			dbc := new(dbCAHandler)
			if err := json.Unmarshal(e.Value, dbc); err != nil {
				db.logger.Warn("skipping corrupt document",
					"entity", "ca handler", "key", string(e.Key), "error", err)
				continue
			}
			if dbc.ID == pattern {
				return project(dbc.fields(), projection), nil
			}
		}
		return acme.Record{}, nil
	}
	return db.lookup(ctx, caHandlerPipeline, column, pattern, projection)
}

// caHandlerPipeline has no hops and no name index table: registrations are
// keyed by name directly.
var caHandlerPipeline = &pipeline{
	entity: "ca handler",
	table:  caHandlerTable,
	leaf:   unmarshalCAHandlerFields,
}
