package nosql

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/smallstep/assert"
	nosqlDB "github.com/smallstep/nosql"
	"github.com/smallstep/nosql/database"
	"github.com/stretchr/testify/require"

	"github.com/certsecure/acmed/acme"
	"github.com/certsecure/acmed/db"
)

func TestDB_OrderUpdate_failures(t *testing.T) {
	type test struct {
		db      nosqlDB.DB
		errType acme.ErrorType
	}
	var tests = map[string]func(t *testing.T) test{
		"fail/index-load-error": func(t *testing.T) test {
			return test{
				db: &db.MockNoSQLDB{
					MGet: func(bucket, key []byte) ([]byte, error) {
						assert.Equals(t, bucket, orderByNameTable)
						assert.Equals(t, key, []byte("order-1"))
						return nil, errors.New("force")
					},
				},
				errType: acme.ErrorStoreUnavailableType,
			}
		},
		"fail/not-found": func(t *testing.T) test {
			return test{
				db: &db.MockNoSQLDB{
					MGet: func(bucket, key []byte) ([]byte, error) {
						return nil, database.ErrNotFound
					},
				},
				errType: acme.ErrorRecordNotFoundType,
			}
		},
	}
	for name, run := range tests {
		tc := run(t)
		t.Run(name, func(t *testing.T) {
			d := newMockedDB(tc.db)
			err := d.OrderUpdate(context.Background(), &acme.Order{Name: "order-1", Status: acme.StatusValid})
			require.Error(t, err)
			require.True(t, acme.IsErrorType(err, tc.errType))
		})
	}
}

func TestDB_OrderAdd_expiresMerge(t *testing.T) {
	d := newTestDB(t)
	seedOrder(t, d)
	ctx := context.Background()

	err := d.OrderUpdate(ctx, &acme.Order{Name: "order-1", Expires: 1700000000})
	assert.FatalError(t, err)

	rec, err := d.OrderLookup(ctx, "name", "order-1", nil)
	assert.FatalError(t, err)
	assert.Equals(t, rec["expires"], int64(1700000000))
	// Status was not supplied and is retained.
	assert.Equals(t, rec["status__name"], "pending")
}
