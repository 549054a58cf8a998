package nosql

import (
	"context"
	"encoding/json"
	"time"

	nosqlDB "github.com/smallstep/nosql"

	"github.com/certsecure/acmed/acme"
)

// dbHousekeeping is one named operational parameter. Documents are keyed by
// parameter name; the table doubles as the home of the persisted schema
// version under the "dbversion" key.
type dbHousekeeping struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
}

func (dbh *dbHousekeeping) clone() *dbHousekeeping {
	nu := *dbh
	return &nu
}

// getDBHousekeeping retrieves and unmarshals a parameter. A missing
// parameter returns (nil, nil).
func (db *DB) getDBHousekeeping(_ context.Context, name string) (*dbHousekeeping, error) {
	data, err := db.db.Get(housekeepingTable, []byte(name))
	if nosqlDB.IsErrNotFound(err) {
		return nil, nil
	} else if err != nil {
		return nil, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error loading housekeeping parameter %s", name)
	}
	dbh := new(dbHousekeeping)
	if err := json.Unmarshal(data, dbh); err != nil {
		return nil, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error unmarshaling housekeeping parameter %s", name)
	}
	return dbh, nil
}

// HousekeepingAdd creates or overwrites a named operational parameter.
// Returns the parameter name and whether a new record was created.
func (db *DB) HousekeepingAdd(ctx context.Context, name, value string) (string, bool, error) {
	if err := checkDeadline(ctx); err != nil {
		return "", false, err
	}
	if name == "" {
		return "", false, acme.NewError(acme.ErrorStoreUnavailableType, "housekeeping parameter name cannot be empty")
	}
	old, err := db.getDBHousekeeping(ctx, name)
	if err != nil {
		return "", false, err
	}
	if old != nil {
		nu := old.clone()
		nu.Value = value
		if err := db.save(ctx, name, nu, old, "housekeeping parameter", housekeepingTable); err != nil {
			return "", false, err
		}
		db.logger.Debug("housekeeping parameter updated", "name", name)
		return name, false, nil
	}
	dbh := &dbHousekeeping{
		Name:      name,
		Value:     value,
		CreatedAt: acme.SystemClock.Now(),
	}
	if err := db.save(ctx, name, dbh, nil, "housekeeping parameter", housekeepingTable); err != nil {
		return "", false, err
	}
	db.logger.Debug("housekeeping parameter created", "name", name)
	return name, true, nil
}

// HousekeepingGet returns the value of a named parameter. The second return
// value reports whether the parameter exists.
func (db *DB) HousekeepingGet(ctx context.Context, name string) (string, bool, error) {
	if err := checkDeadline(ctx); err != nil {
		return "", false, err
	}
	dbh, err := db.getDBHousekeeping(ctx, name)
	if err != nil {
		return "", false, err
	}
	if dbh == nil {
		return "", false, nil
	}
	return dbh.Value, true, nil
}
