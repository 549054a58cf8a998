package nosql

import (
	"encoding/json"

	"github.com/certsecure/acmed/acme"
)

// dbStatus is one persisted entry of the status vocabulary.
type dbStatus struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// statusRegistry is the in-process view of the persisted status vocabulary.
// It is immutable after open.
type statusRegistry struct {
	byName map[acme.Status]int64
	byID   map[int64]acme.Status
}

// seedStatuses persists the closed vocabulary, identifier i+1 for position i.
// Seeding is upsert-if-absent so repeated startup never duplicates entries.
func (db *DB) seedStatuses() error {
	for i, name := range acme.Statuses {
		s := &dbStatus{ID: int64(i + 1), Name: string(name)}
		b, err := json.Marshal(s)
		if err != nil {
			return acme.WrapError(acme.ErrorStoreUnavailableType, err, "error marshaling status %s", name)
		}
		if _, _, err := db.db.CmpAndSwap(statusTable, []byte(name), nil, b); err != nil {
			return acme.WrapError(acme.ErrorStoreUnavailableType, err, "error seeding status %s", name)
		}
	}
	return nil
}

// loadStatuses reads the persisted vocabulary into a registry.
func (db *DB) loadStatuses() (*statusRegistry, error) {
	entries, err := db.db.List(statusTable)
	if err != nil {
		return nil, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error loading status registry")
	}
	reg := &statusRegistry{
		byName: make(map[acme.Status]int64, len(entries)),
		byID:   make(map[int64]acme.Status, len(entries)),
	}
	for _, e := range entries {
		var s dbStatus
		if err := json.Unmarshal(e.Value, &s); err != nil {
			return nil, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error unmarshaling status %s", string(e.Key))
		}
		reg.byName[acme.Status(s.Name)] = s.ID
		reg.byID[s.ID] = acme.Status(s.Name)
	}
	return reg, nil
}

// resolve translates a status name into its stable identifier.
func (r *statusRegistry) resolve(name acme.Status) (int64, error) {
	id, ok := r.byName[name]
	if !ok {
		return 0, acme.NewError(acme.ErrorUnknownStatusType, "unknown status %q", string(name))
	}
	return id, nil
}

// nameOf translates a stable identifier back into its status name.
func (r *statusRegistry) nameOf(id int64) (acme.Status, error) {
	name, ok := r.byID[id]
	if !ok {
		return "", acme.NewError(acme.ErrorUnknownStatusType, "unknown status id %d", id)
	}
	return name, nil
}

// statusFields is the flattened status context attached to every
// status-bearing record.
func (db *DB) statusFields(id int64) acme.Record {
	name, err := db.statuses.nameOf(id)
	if err != nil {
		// A stored identifier outside the registry means a corrupt document;
		// surface it as an empty name rather than failing the whole row.
		name = ""
	}
	return acme.Record{"status__id": id, "status__name": string(name)}
}
