package nosql

import (
	"context"
	"testing"

	"github.com/smallstep/assert"

	"github.com/certsecure/acmed/acme"
)

func TestDB_CliAccountLifecycle(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	id, created, err := d.CliAccountAdd(ctx, &acme.CliAccount{
		Name:        "operator",
		JWK:         testJWK,
		Contact:     []string{"mailto:ops@example.com"},
		CliAdmin:    true,
		ReportAdmin: true,
	})
	assert.FatalError(t, err)
	assert.True(t, created)

	// Upsert by name; admin flags overwrite rather than merge.
	id2, created, err := d.CliAccountAdd(ctx, &acme.CliAccount{
		Name:             "operator",
		CertificateAdmin: true,
	})
	assert.FatalError(t, err)
	assert.False(t, created)
	assert.Equals(t, id2, id)

	perms, err := d.CliAccountPermissions(ctx, "operator")
	assert.FatalError(t, err)
	assert.False(t, perms.CliAdmin)
	assert.False(t, perms.ReportAdmin)
	assert.True(t, perms.CertificateAdmin)

	jwk, err := d.CliAccountJWKLoad(ctx, "operator")
	assert.FatalError(t, err)
	assert.Equals(t, jwk["kty"], "EC")
	// Unlike the ACME account variant, there is no alg member.
	_, ok := jwk["alg"]
	assert.False(t, ok)

	fields, rows, err := d.CliAccountsReport(ctx)
	assert.FatalError(t, err)
	assert.Len(t, 8, fields)
	assert.Len(t, 1, rows)
	assert.Equals(t, rows[0]["name"], "operator")

	ok, err = d.CliAccountDelete(ctx, "operator")
	assert.FatalError(t, err)
	assert.True(t, ok)

	ok, err = d.CliAccountDelete(ctx, "operator")
	assert.FatalError(t, err)
	assert.False(t, ok)

	perms, err = d.CliAccountPermissions(ctx, "operator")
	assert.FatalError(t, err)
	assert.Nil(t, perms)
}

func TestDB_CAHandlerAdd(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	id, created, err := d.CAHandlerAdd(ctx, &acme.CAHandlerRegistration{
		Name:   "ejbca",
		Value1: "profile-a",
	})
	assert.FatalError(t, err)
	assert.True(t, created)

	// Upsert by name; both values overwrite.
	id2, created, err := d.CAHandlerAdd(ctx, &acme.CAHandlerRegistration{
		Name:   "ejbca",
		Value1: "profile-b",
		Value2: "ee-profile",
	})
	assert.FatalError(t, err)
	assert.False(t, created)
	assert.Equals(t, id2, id)

	rec, err := d.CAHandlerLookup(ctx, "name", "ejbca", nil)
	assert.FatalError(t, err)
	assert.Equals(t, rec["value1"], "profile-b")
	assert.Equals(t, rec["value2"], "ee-profile")

	rec, err = d.CAHandlerLookup(ctx, "name", "missing", nil)
	assert.FatalError(t, err)
	assert.Equals(t, len(rec), 0)

	// Non-key columns match by pattern.
	rec, err = d.CAHandlerLookup(ctx, "value1", "PROFILE", []string{"name"})
	assert.FatalError(t, err)
	assert.Equals(t, rec["name"], "ejbca")

	// Id addressing is exact even though documents are keyed by name.
	rec, err = d.CAHandlerLookup(ctx, "id", id, nil)
	assert.FatalError(t, err)
	assert.Equals(t, rec["name"], "ejbca")

	rec, err = d.CAHandlerLookup(ctx, "id", "ghost", nil)
	assert.FatalError(t, err)
	assert.Equals(t, len(rec), 0)
}
