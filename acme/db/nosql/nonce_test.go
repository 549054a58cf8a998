package nosql

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/smallstep/assert"
	nosqlDB "github.com/smallstep/nosql"
	"github.com/smallstep/nosql/database"

	"github.com/certsecure/acmed/acme"
	"github.com/certsecure/acmed/db"
)

func TestDB_NonceAdd(t *testing.T) {
	nonceVal := "b47dGxPpfGZy"
	type test struct {
		db  nosqlDB.DB
		err error
	}
	var tests = map[string]func(t *testing.T) test{
		"fail/cmpAndSwap-error": func(t *testing.T) test {
			return test{
				db: &db.MockNoSQLDB{
					MCmpAndSwap: func(bucket, key, old, nu []byte) ([]byte, bool, error) {
						assert.Equals(t, bucket, nonceTable)
						assert.Equals(t, key, []byte(nonceVal))
						assert.Equals(t, old, nil)

						dbn := new(dbNonce)
						assert.FatalError(t, json.Unmarshal(nu, dbn))
						assert.Equals(t, dbn.Nonce, nonceVal)
						assert.True(t, acme.SystemClock.Now().Add(-time.Minute).Before(dbn.CreatedAt))
						assert.True(t, acme.SystemClock.Now().Add(time.Minute).After(dbn.CreatedAt))
						return nil, false, errors.New("force")
					},
				},
				err: errors.New("error saving acme nonce: force"),
			}
		},
		"fail/duplicate": func(t *testing.T) test {
			return test{
				db: &db.MockNoSQLDB{
					MCmpAndSwap: func(bucket, key, old, nu []byte) ([]byte, bool, error) {
						return []byte("existing"), false, nil
					},
				},
				err: errors.New("error saving acme nonce; changed since last read"),
			}
		},
		"ok": func(t *testing.T) test {
			return test{
				db: &db.MockNoSQLDB{
					MCmpAndSwap: func(bucket, key, old, nu []byte) ([]byte, bool, error) {
						assert.Equals(t, bucket, nonceTable)
						assert.Equals(t, key, []byte(nonceVal))
						return nu, true, nil
					},
				},
			}
		},
	}
	for name, run := range tests {
		tc := run(t)
		t.Run(name, func(t *testing.T) {
			d := newMockedDB(tc.db)
			if id, err := d.NonceAdd(context.Background(), nonceVal); err != nil {
				if assert.NotNil(t, tc.err) {
					assert.HasPrefix(t, err.Error(), tc.err.Error())
				}
			} else {
				if assert.Nil(t, tc.err) {
					assert.True(t, id != "")
				}
			}
		})
	}
}

func TestDB_NonceDelete(t *testing.T) {
	nonceVal := "b47dGxPpfGZy"
	type test struct {
		db  nosqlDB.DB
		ok  bool
		err error
	}
	var tests = map[string]func(t *testing.T) test{
		"ok/not-found": func(t *testing.T) test {
			return test{
				db: &db.MockNoSQLDB{
					MUpdate: func(tx *database.Tx) error {
						assert.Equals(t, tx.Operations[0].Bucket, nonceTable)
						assert.Equals(t, tx.Operations[0].Key, []byte(nonceVal))
						assert.Equals(t, tx.Operations[0].Cmd, database.Get)

						assert.Equals(t, tx.Operations[1].Bucket, nonceTable)
						assert.Equals(t, tx.Operations[1].Key, []byte(nonceVal))
						assert.Equals(t, tx.Operations[1].Cmd, database.Delete)
						return database.ErrNotFound
					},
				},
				ok: false,
			}
		},
		"fail/db.Update-error": func(t *testing.T) test {
			return test{
				db: &db.MockNoSQLDB{
					MUpdate: func(tx *database.Tx) error {
						return errors.New("force")
					},
				},
				err: errors.New("error deleting nonce " + nonceVal + ": force"),
			}
		},
		"ok": func(t *testing.T) test {
			return test{
				db: &db.MockNoSQLDB{
					MUpdate: func(tx *database.Tx) error {
						assert.Equals(t, tx.Operations[0].Cmd, database.Get)
						assert.Equals(t, tx.Operations[1].Cmd, database.Delete)
						return nil
					},
				},
				ok: true,
			}
		},
	}
	for name, run := range tests {
		tc := run(t)
		t.Run(name, func(t *testing.T) {
			d := newMockedDB(tc.db)
			if ok, err := d.NonceDelete(context.Background(), nonceVal); err != nil {
				if assert.NotNil(t, tc.err) {
					assert.HasPrefix(t, err.Error(), tc.err.Error())
				}
			} else {
				if assert.Nil(t, tc.err) {
					assert.Equals(t, ok, tc.ok)
				}
			}
		})
	}
}

func TestDB_NonceLifecycle(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	id, err := d.NonceAdd(ctx, "b47dGxPpfGZy")
	assert.FatalError(t, err)
	assert.True(t, id != "")

	ok, err := d.NonceCheck(ctx, "b47dGxPpfGZy")
	assert.FatalError(t, err)
	assert.True(t, ok)

	// Check does not consume.
	ok, err = d.NonceCheck(ctx, "b47dGxPpfGZy")
	assert.FatalError(t, err)
	assert.True(t, ok)

	ok, err = d.NonceDelete(ctx, "b47dGxPpfGZy")
	assert.FatalError(t, err)
	assert.True(t, ok)

	ok, err = d.NonceCheck(ctx, "b47dGxPpfGZy")
	assert.FatalError(t, err)
	assert.False(t, ok)

	ok, err = d.NonceDelete(ctx, "b47dGxPpfGZy")
	assert.FatalError(t, err)
	assert.False(t, ok)
}
