package nosql

import (
	"context"
	"encoding/json"
	"time"

	nosqlDB "github.com/smallstep/nosql"

	"github.com/certsecure/acmed/acme"
)

// dbChallenge is the persisted form of an ACME challenge. AuthzID holds the
// resolved primary key of the owning authorization.
type dbChallenge struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	AuthzID          string    `json:"authorization_id"`
	Type             string    `json:"type"`
	Token            string    `json:"token"`
	KeyAuthorization string    `json:"keyauthorization"`
	Expires          int64     `json:"expires,omitempty"`
	Validated        int64     `json:"validated,omitempty"`
	StatusID         int64     `json:"status_id"`
	CreatedAt        time.Time `json:"createdAt"`
}

func (dbc *dbChallenge) clone() *dbChallenge {
	nu := *dbc
	return &nu
}

func (dbc *dbChallenge) fields(db *DB) acme.Record {
	rec := acme.Record{
		"id":               dbc.ID,
		"name":             dbc.Name,
		"authorization_id": dbc.AuthzID,
		"type":             dbc.Type,
		"token":            dbc.Token,
		"keyauthorization": dbc.KeyAuthorization,
		"expires":          dbc.Expires,
		"validated":        dbc.Validated,
		"created_at":       dbc.CreatedAt,
	}
	for k, v := range db.statusFields(dbc.StatusID) {
		rec[k] = v
	}
	return rec
}

func unmarshalChallengeFields(db *DB, data []byte) (acme.Record, error) {
	dbc := new(dbChallenge)
	if err := json.Unmarshal(data, dbc); err != nil {
		return nil, err
	}
	return dbc.fields(db), nil
}

// getDBChallenge retrieves and unmarshals a dbChallenge.
func (db *DB) getDBChallenge(_ context.Context, id string) (*dbChallenge, error) {
	data, err := db.db.Get(challengeTable, []byte(id))
	if nosqlDB.IsErrNotFound(err) {
		return nil, acme.NewError(acme.ErrorRecordNotFoundType, "challenge %s not found", id)
	} else if err != nil {
		return nil, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error loading challenge %s", id)
	}
	dbc := new(dbChallenge)
	if err := json.Unmarshal(data, dbc); err != nil {
		return nil, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error unmarshaling challenge %s", id)
	}
	return dbc, nil
}

// ChallengeAdd creates a challenge owned by the authorization referenced by
// name. A missing authorization fails with a dangling-reference error before
// anything is written. The status defaults to pending.
func (db *DB) ChallengeAdd(ctx context.Context, ch *acme.Challenge) (string, error) {
	if err := checkDeadline(ctx); err != nil {
		return "", err
	}
	if ch.Name == "" {
		return "", acme.NewError(acme.ErrorStoreUnavailableType, "challenge name cannot be empty")
	}
	authzID, ok, err := db.nameToID(authzByNameTable, ch.Authorization)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", acme.NewError(acme.ErrorDanglingReferenceType, "authorization %s referenced by challenge %s not found", ch.Authorization, ch.Name)
	}

	status := ch.Status
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
	dbc := &dbChallenge{
		ID:               id,
		Name:             ch.Name,
		AuthzID:          authzID,
		Type:             ch.Type,
		Token:            ch.Token,
		KeyAuthorization: ch.KeyAuthorization,
		Expires:          ch.Expires,
		Validated:        ch.Validated,
		StatusID:         statusID,
		CreatedAt:        acme.SystemClock.Now(),
	}
	if err := db.setNameIndex(challengeByNameTable, ch.Name, id); err != nil {
		return "", err
	}
	if err := db.save(ctx, id, dbc, nil, "challenge", challengeTable); err != nil {
		db.db.Del(challengeByNameTable, []byte(ch.Name))
		return "", err
	}
	db.logger.Debug("challenge created", "name", ch.Name, "id", id, "authorization", ch.Authorization)
	return id, nil
}

// ChallengeUpdate merges the supplied status, key authorization, expiry and
// validation timestamp over the challenge addressed by name.
func (db *DB) ChallengeUpdate(ctx context.Context, ch *acme.Challenge) error {
	if err := checkDeadline(ctx); err != nil {
		return err
	}
	id, ok, err := db.nameToID(challengeByNameTable, ch.Name)
	if err != nil {
		return err
	}
	if !ok {
		return acme.NewError(acme.ErrorRecordNotFoundType, "challenge %s not found", ch.Name)
	}
	old, err := db.getDBChallenge(ctx, id)
	if err != nil {
		return err
	}

	nu := old.clone()
	if ch.Status != "" {
		statusID, err := db.statuses.resolve(ch.Status)
		if err != nil {
			return err
		}
		nu.StatusID = statusID
	}
	if ch.KeyAuthorization != "" {
		nu.KeyAuthorization = ch.KeyAuthorization
	}
	if ch.Expires != 0 {
		nu.Expires = ch.Expires
	}
	if ch.Validated != 0 {
		nu.Validated = ch.Validated
	}
	if err := db.save(ctx, id, nu, old, "challenge", challengeTable); err != nil {
		return err
	}
	db.logger.Debug("challenge updated", "name", ch.Name, "status", string(ch.Status))
	return nil
}

// ChallengeLookup returns the first challenge whose column matches the
// pattern, expanded through its authorization, order and account, or an
// empty record.
func (db *DB) ChallengeLookup(ctx context.Context, column, pattern string, projection []string) (acme.Record, error) {
	return db.lookup(ctx, challengePipeline, column, pattern, projection)
}

// ChallengesSearch returns all challenges whose column matches the pattern,
// with the full authorization, order and account context joined.
func (db *DB) ChallengesSearch(ctx context.Context, column, pattern string, projection []string) ([]acme.Record, error) {
	return db.search(ctx, challengePipeline, column, pattern, projection)
}

// challengePipeline is the deepest join: the owning authorization, its
// order, and that order's account.
var challengePipeline = &pipeline{
	entity: "challenge",
	table:  challengeTable,
	index:  challengeByNameTable,
	leaf:   unmarshalChallengeFields,
	hops: []hop{
		{prefix: "authorization", idField: "authorization_id", table: authzTable, unmarshal: unmarshalAuthzFields},
		{prefix: "authorization__order", idField: "authorization__order_id", table: orderTable, unmarshal: unmarshalOrderFields},
		{prefix: "authorization__order__account", idField: "authorization__order__account_id", table: accountTable, unmarshal: unmarshalAccountFields},
	},
	routes: map[string]string{
		"status__id":                             "",
		"status__name":                           "",
		"authorization__id":                      "authorization",
		"authorization__name":                    "authorization",
		"authorization__type":                    "authorization",
		"authorization__value":                   "authorization",
		"authorization__token":                   "authorization",
		"authorization__status__id":              "authorization",
		"authorization__status__name":            "authorization",
		"authorization__order__id":               "authorization__order",
		"authorization__order__name":             "authorization__order",
		"authorization__order__status__id":       "authorization__order",
		"authorization__order__status__name":     "authorization__order",
		"authorization__order__account__id":      "authorization__order__account",
		"authorization__order__account__name":    "authorization__order__account",
		"authorization__order__account__jwk":     "authorization__order__account",
		"authorization__order__account__alg":     "authorization__order__account",
		"authorization__order__account__eab_kid": "authorization__order__account",
	},
}
