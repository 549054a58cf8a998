package nosql

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallstep/assert"
	"github.com/stretchr/testify/require"

	"github.com/certsecure/acmed/acme"
)

// seedChain persists the canonical alice -> order-1 -> authz-1 -> chal-1
// ownership chain.
func seedChain(t *testing.T, d *DB) {
	t.Helper()
	ctx := context.Background()

	_, _, err := d.AccountAdd(ctx, &acme.Account{Name: "alice", JWK: testJWK, Alg: "ES256"})
	assert.FatalError(t, err)
	_, err = d.OrderAdd(ctx, &acme.Order{
		Name:        "order-1",
		Account:     "alice",
		Identifiers: []acme.Identifier{{Type: "dns", Value: "example.com"}},
	})
	assert.FatalError(t, err)
	_, err = d.AuthorizationAdd(ctx, &acme.Authorization{
		Name:  "authz-1",
		Order: "order-1",
		Type:  "dns",
		Value: "example.com",
		Token: "tok-1",
	})
	assert.FatalError(t, err)
	_, err = d.ChallengeAdd(ctx, &acme.Challenge{
		Name:          "chal-1",
		Authorization: "authz-1",
		Type:          "http-01",
		Token:         "tok-1",
	})
	assert.FatalError(t, err)
}

func TestDB_ChallengeLookup_compositeChain(t *testing.T) {
	d := newTestDB(t)
	seedChain(t, d)

	rec, err := d.ChallengeLookup(context.Background(), "name", "chal-1", nil)
	assert.FatalError(t, err)
	assert.Equals(t, rec["name"], "chal-1")
	assert.Equals(t, rec["status__name"], "pending")
	assert.Equals(t, rec["authorization__name"], "authz-1")
	assert.Equals(t, rec["authorization__order__name"], "order-1")
	assert.Equals(t, rec["authorization__order__account__name"], "alice")
}

func TestDB_ChallengesSearch_byAccount(t *testing.T) {
	d := newTestDB(t)
	seedChain(t, d)
	ctx := context.Background()

	rows, err := d.ChallengesSearch(ctx, "authorization__order__account__name", "alice", []string{"name", "token"})
	assert.FatalError(t, err)
	assert.Len(t, 1, rows)
	assert.Equals(t, rows[0]["name"], "chal-1")
	assert.Equals(t, rows[0]["token"], "tok-1")
	// Projection reduces the row to the requested fields.
	_, ok := rows[0]["authorization__name"]
	assert.False(t, ok)

	rows, err = d.ChallengesSearch(ctx, "authorization__order__account__name", "bob", nil)
	assert.FatalError(t, err)
	assert.Len(t, 0, rows)
}

func TestDB_Search_unroutableColumn(t *testing.T) {
	d := newTestDB(t)
	seedChain(t, d)

	// A dotted column outside the routing table is not an error; it simply
	// matches nothing.
	rows, err := d.ChallengesSearch(context.Background(), "authorization__bogus__field", "x", nil)
	assert.FatalError(t, err)
	assert.Len(t, 0, rows)
}

func TestDB_Search_brokenReference(t *testing.T) {
	d := newTestDB(t)
	seedChain(t, d)
	ctx := context.Background()

	before := testutil.ToFloat64(brokenReferenceCounter.WithLabelValues("order", "account"))

	// Remove the account out from under the order.
	ok, err := d.AccountDelete(ctx, "alice")
	assert.FatalError(t, err)
	assert.True(t, ok)

	// The order row is dropped, not failed.
	rec, err := d.OrderLookup(ctx, "name", "order-1", nil)
	assert.FatalError(t, err)
	assert.Equals(t, len(rec), 0)

	after := testutil.ToFloat64(brokenReferenceCounter.WithLabelValues("order", "account"))
	require.Equal(t, before+1, after)
}

func TestDB_OrderAdd_danglingAccount(t *testing.T) {
	d := newTestDB(t)

	_, err := d.OrderAdd(context.Background(), &acme.Order{Name: "order-1", Account: "ghost"})
	require.Error(t, err)
	require.True(t, acme.IsErrorType(err, acme.ErrorDanglingReferenceType))
}

func TestDB_ChallengeAdd_danglingAuthorization(t *testing.T) {
	d := newTestDB(t)

	_, err := d.ChallengeAdd(context.Background(), &acme.Challenge{Name: "chal-1", Authorization: "ghost"})
	require.Error(t, err)
	require.True(t, acme.IsErrorType(err, acme.ErrorDanglingReferenceType))
}

func TestDB_StatusFlattening(t *testing.T) {
	d := newTestDB(t)
	seedChain(t, d)
	ctx := context.Background()

	err := d.OrderUpdate(ctx, &acme.Order{Name: "order-1", Status: acme.StatusValid})
	assert.FatalError(t, err)

	rec, err := d.OrderLookup(ctx, "name", "order-1", nil)
	assert.FatalError(t, err)
	assert.Equals(t, rec["status__name"], "valid")
	assert.Equals(t, rec["status__id"], int64(5))

	// Unknown status names are rejected before anything is written.
	err = d.OrderUpdate(ctx, &acme.Order{Name: "order-1", Status: "sideways"})
	require.Error(t, err)
	require.True(t, acme.IsErrorType(err, acme.ErrorUnknownStatusType))

	rec, err = d.OrderLookup(ctx, "name", "order-1", nil)
	assert.FatalError(t, err)
	assert.Equals(t, rec["status__name"], "valid")
}
