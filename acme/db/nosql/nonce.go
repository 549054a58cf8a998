package nosql

import (
	"context"
	"time"

	nosqlDB "github.com/smallstep/nosql"
	"github.com/smallstep/nosql/database"

	"github.com/certsecure/acmed/acme"
)

// dbNonce contains replay-nonce metadata. Documents are keyed by the nonce
// value itself so check and consume are single-key operations.
type dbNonce struct {
	ID        string    `json:"id"`
	Nonce     string    `json:"nonce"`
	CreatedAt time.Time `json:"createdAt"`
}

// NonceAdd stores a replay nonce and returns its record ID. Adding the same
// nonce twice fails: a nonce is single-use from the moment it is minted.
func (db *DB) NonceAdd(ctx context.Context, nonce string) (string, error) {
	if err := checkDeadline(ctx); err != nil {
		return "", err
	}
	if nonce == "" {
		return "", acme.NewError(acme.ErrorStoreUnavailableType, "nonce cannot be empty")
	}
	id, err := acme.RandID()
	if err != nil {
		return "", err
	}
	n := &dbNonce{
		ID:        id,
		Nonce:     nonce,
		CreatedAt: acme.SystemClock.Now(),
	}
	if err := db.save(ctx, nonce, n, nil, "nonce", nonceTable); err != nil {
		return "", err
	}
	return id, nil
}

// NonceCheck reports whether the nonce is outstanding without consuming it.
func (db *DB) NonceCheck(ctx context.Context, nonce string) (bool, error) {
	if err := checkDeadline(ctx); err != nil {
		return false, err
	}
	_, err := db.db.Get(nonceTable, []byte(nonce))
	if nosqlDB.IsErrNotFound(err) {
		return false, nil
	} else if err != nil {
		return false, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error loading nonce %s", nonce)
	}
	return true, nil
}

// NonceDelete consumes the nonce. The existence check and the delete run in
// one transaction so two concurrent consumers cannot both succeed. A nonce
// that is already gone is not an error; the result is simply false.
func (db *DB) NonceDelete(ctx context.Context, nonce string) (bool, error) {
	if err := checkDeadline(ctx); err != nil {
		return false, err
	}
	err := db.db.Update(&database.Tx{
		Operations: []*database.TxEntry{
			{
				Bucket: nonceTable,
				Key:    []byte(nonce),
				Cmd:    database.Get,
			},
			{
				Bucket: nonceTable,
				Key:    []byte(nonce),
				Cmd:    database.Delete,
			},
		},
	})
	switch {
	case nosqlDB.IsErrNotFound(err):
		return false, nil
	case err != nil:
		return false, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error deleting nonce %s", nonce)
	default:
		return true, nil
	}
}
