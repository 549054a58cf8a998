package nosql

import (
	"context"
	"testing"

	"github.com/smallstep/assert"
	"github.com/stretchr/testify/require"

	"github.com/certsecure/acmed/acme"
)

func seedOrder(t *testing.T, d *DB) {
	t.Helper()
	ctx := context.Background()
	_, _, err := d.AccountAdd(ctx, &acme.Account{Name: "alice", JWK: testJWK})
	assert.FatalError(t, err)
	_, err = d.OrderAdd(ctx, &acme.Order{Name: "order-1", Account: "alice"})
	assert.FatalError(t, err)
}

func TestDB_CertificateAdd(t *testing.T) {
	d := newTestDB(t)
	seedOrder(t, d)
	ctx := context.Background()

	id, created, err := d.CertificateAdd(ctx, &acme.Certificate{
		Name:    "cert-1",
		Order:   "order-1",
		CSR:     "csr-pem",
		CertRaw: "raw-pem",
		Serial:  "01ab",
	})
	assert.FatalError(t, err)
	assert.True(t, created)
	assert.True(t, id != "")

	// Second add by the same name merges; omitted fields survive.
	id2, created, err := d.CertificateAdd(ctx, &acme.Certificate{
		Name: "cert-1",
		Cert: "cert-pem",
	})
	assert.FatalError(t, err)
	assert.False(t, created)
	assert.Equals(t, id2, id)

	rec, err := d.CertificateLookup(ctx, "name", "cert-1", nil)
	assert.FatalError(t, err)
	assert.Equals(t, rec["cert"], "cert-pem")
	assert.Equals(t, rec["csr"], "csr-pem")
	assert.Equals(t, rec["serial"], "01ab")
	assert.Equals(t, rec["order__name"], "order-1")
	assert.Equals(t, rec["order__account__name"], "alice")
}

func TestDB_CertificateAdd_enrollmentError(t *testing.T) {
	d := newTestDB(t)
	seedOrder(t, d)
	ctx := context.Background()

	_, _, err := d.CertificateAdd(ctx, &acme.Certificate{
		Name:           "cert-1",
		Order:          "order-1",
		Cert:           "cert-pem",
		PollIdentifier: "poll-1",
	})
	assert.FatalError(t, err)

	// An error update touches only error and poll_identifier.
	_, created, err := d.CertificateAdd(ctx, &acme.Certificate{
		Name:           "cert-1",
		Cert:           "must-not-land",
		Error:          "urn:ietf:params:acme:error:serverInternal",
		PollIdentifier: "poll-2",
	})
	assert.FatalError(t, err)
	assert.False(t, created)

	rec, err := d.CertificateLookup(ctx, "name", "cert-1", nil)
	assert.FatalError(t, err)
	assert.Equals(t, rec["cert"], "cert-pem")
	assert.Equals(t, rec["error"], "urn:ietf:params:acme:error:serverInternal")
	assert.Equals(t, rec["poll_identifier"], "poll-2")
}

func TestDB_CertificateAdd_danglingOrder(t *testing.T) {
	d := newTestDB(t)

	_, _, err := d.CertificateAdd(context.Background(), &acme.Certificate{Name: "cert-1", Order: "ghost"})
	require.Error(t, err)
	require.True(t, acme.IsErrorType(err, acme.ErrorDanglingReferenceType))
}

func TestDB_CertificateDelete(t *testing.T) {
	d := newTestDB(t)
	seedOrder(t, d)
	ctx := context.Background()

	_, _, err := d.CertificateAdd(ctx, &acme.Certificate{Name: "cert-1", Order: "order-1", Serial: "01ab"})
	assert.FatalError(t, err)

	ok, err := d.CertificateDelete(ctx, "serial", "01ab")
	assert.FatalError(t, err)
	assert.True(t, ok)

	ok, err = d.CertificateDelete(ctx, "name", "cert-1")
	assert.FatalError(t, err)
	assert.False(t, ok)
}

func TestDB_CertificateAccountCheck(t *testing.T) {
	d := newTestDB(t)
	seedOrder(t, d)
	ctx := context.Background()

	_, _, err := d.CertificateAdd(ctx, &acme.Certificate{Name: "cert-1", Order: "order-1", CertRaw: "raw-pem"})
	assert.FatalError(t, err)

	orderName, err := d.CertificateAccountCheck(ctx, "alice", "raw-pem")
	assert.FatalError(t, err)
	assert.Equals(t, orderName, "order-1")

	// Domain-key signing: no account name still resolves the order.
	orderName, err = d.CertificateAccountCheck(ctx, "", "raw-pem")
	assert.FatalError(t, err)
	assert.Equals(t, orderName, "order-1")

	// Wrong account does not.
	orderName, err = d.CertificateAccountCheck(ctx, "bob", "raw-pem")
	assert.FatalError(t, err)
	assert.Equals(t, orderName, "")

	// Unknown certificate does not.
	orderName, err = d.CertificateAccountCheck(ctx, "alice", "unknown-pem")
	assert.FatalError(t, err)
	assert.Equals(t, orderName, "")
}
