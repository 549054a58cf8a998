package acme

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotFound is used by DB implementations to indicate that an entity does
// not exist. Lookup and search operations do NOT return it for zero matches;
// zero matches is success with an empty result.
var ErrNotFound = errors.New("not found")

// DB is the storage interface expected by the ACME engine. Every operation
// is a single short-lived unit of work, safe for concurrent use, and honors
// the context deadline: on expiry it fails with a timeout error and
// guarantees no partially-written record.
//
// Foreign keys are always supplied by the referenced entity's name, never
// its internal primary key. Status fields cross this boundary as registry
// names only.
type DB interface {
	AccountAdd(ctx context.Context, acc *Account) (name string, created bool, err error)
	AccountUpdate(ctx context.Context, acc *Account) (id string, err error)
	AccountLookup(ctx context.Context, column, pattern string) (Record, error)
	AccountDelete(ctx context.Context, name string) (bool, error)
	AccountJWKLoad(ctx context.Context, name string) (Record, error)
	AccountsReport(ctx context.Context) ([]string, []Record, error)

	OrderAdd(ctx context.Context, o *Order) (id string, err error)
	OrderUpdate(ctx context.Context, o *Order) error
	OrderLookup(ctx context.Context, column, pattern string, projection []string) (Record, error)
	OrdersNonTerminalSearch(ctx context.Context, column, pattern string, projection []string) ([]Record, error)

	AuthorizationAdd(ctx context.Context, az *Authorization) (id string, err error)
	AuthorizationUpdate(ctx context.Context, az *Authorization) (id string, err error)
	AuthorizationLookup(ctx context.Context, column, pattern string, projection []string) (Record, error)
	AuthorizationsSearch(ctx context.Context, column, pattern string, projection []string) ([]Record, error)
	AuthorizationsExpiredSearch(ctx context.Context, column, pattern string, projection []string) ([]Record, error)

	ChallengeAdd(ctx context.Context, ch *Challenge) (id string, err error)
	ChallengeUpdate(ctx context.Context, ch *Challenge) error
	ChallengeLookup(ctx context.Context, column, pattern string, projection []string) (Record, error)
	ChallengesSearch(ctx context.Context, column, pattern string, projection []string) ([]Record, error)

	CertificateAdd(ctx context.Context, crt *Certificate) (id string, created bool, err error)
	CertificateDelete(ctx context.Context, column, value string) (bool, error)
	CertificateLookup(ctx context.Context, column, pattern string, projection []string) (Record, error)
	CertificatesSearch(ctx context.Context, column, pattern string, projection []string) ([]Record, error)
	CertificateAccountCheck(ctx context.Context, accountName, certRaw string) (orderName string, err error)
	CertificatesReport(ctx context.Context) ([]string, []Record, error)

	NonceAdd(ctx context.Context, nonce string) (id string, err error)
	NonceCheck(ctx context.Context, nonce string) (bool, error)
	NonceDelete(ctx context.Context, nonce string) (bool, error)

	HousekeepingAdd(ctx context.Context, name, value string) (string, bool, error)
	HousekeepingGet(ctx context.Context, name string) (value string, ok bool, err error)

	CliAccountAdd(ctx context.Context, acc *CliAccount) (id string, created bool, err error)
	CliAccountDelete(ctx context.Context, name string) (bool, error)
	CliAccountJWKLoad(ctx context.Context, name string) (Record, error)
	CliAccountPermissions(ctx context.Context, name string) (*CliPermissions, error)
	CliAccountsReport(ctx context.Context) ([]string, []Record, error)

	CAHandlerAdd(ctx context.Context, reg *CAHandlerRegistration) (id string, created bool, err error)
	CAHandlerLookup(ctx context.Context, column, pattern string, projection []string) (Record, error)

	DBVersionGet(ctx context.Context) (version, updateRef string, err error)
	SchemaReconcile(ctx context.Context) (SchemaState, error)
}

// MockDB is an implementation of the DB interface that should only be used
// as a mock in tests.
type MockDB struct {
	MockAccountAdd     func(ctx context.Context, acc *Account) (string, bool, error)
	MockAccountUpdate  func(ctx context.Context, acc *Account) (string, error)
	MockAccountLookup  func(ctx context.Context, column, pattern string) (Record, error)
	MockAccountDelete  func(ctx context.Context, name string) (bool, error)
	MockAccountJWKLoad func(ctx context.Context, name string) (Record, error)
	MockAccountsReport func(ctx context.Context) ([]string, []Record, error)

	MockOrderAdd                func(ctx context.Context, o *Order) (string, error)
	MockOrderUpdate             func(ctx context.Context, o *Order) error
	MockOrderLookup             func(ctx context.Context, column, pattern string, projection []string) (Record, error)
	MockOrdersNonTerminalSearch func(ctx context.Context, column, pattern string, projection []string) ([]Record, error)

	MockAuthorizationAdd            func(ctx context.Context, az *Authorization) (string, error)
	MockAuthorizationUpdate         func(ctx context.Context, az *Authorization) (string, error)
	MockAuthorizationLookup         func(ctx context.Context, column, pattern string, projection []string) (Record, error)
	MockAuthorizationsSearch        func(ctx context.Context, column, pattern string, projection []string) ([]Record, error)
	MockAuthorizationsExpiredSearch func(ctx context.Context, column, pattern string, projection []string) ([]Record, error)

	MockChallengeAdd     func(ctx context.Context, ch *Challenge) (string, error)
	MockChallengeUpdate  func(ctx context.Context, ch *Challenge) error
	MockChallengeLookup  func(ctx context.Context, column, pattern string, projection []string) (Record, error)
	MockChallengesSearch func(ctx context.Context, column, pattern string, projection []string) ([]Record, error)

	MockCertificateAdd          func(ctx context.Context, crt *Certificate) (string, bool, error)
	MockCertificateDelete       func(ctx context.Context, column, value string) (bool, error)
	MockCertificateLookup       func(ctx context.Context, column, pattern string, projection []string) (Record, error)
	MockCertificatesSearch      func(ctx context.Context, column, pattern string, projection []string) ([]Record, error)
	MockCertificateAccountCheck func(ctx context.Context, accountName, certRaw string) (string, error)
	MockCertificatesReport      func(ctx context.Context) ([]string, []Record, error)

	MockNonceAdd    func(ctx context.Context, nonce string) (string, error)
	MockNonceCheck  func(ctx context.Context, nonce string) (bool, error)
	MockNonceDelete func(ctx context.Context, nonce string) (bool, error)

	MockHousekeepingAdd func(ctx context.Context, name, value string) (string, bool, error)
	MockHousekeepingGet func(ctx context.Context, name string) (string, bool, error)

	MockCliAccountAdd         func(ctx context.Context, acc *CliAccount) (string, bool, error)
	MockCliAccountDelete      func(ctx context.Context, name string) (bool, error)
	MockCliAccountJWKLoad     func(ctx context.Context, name string) (Record, error)
	MockCliAccountPermissions func(ctx context.Context, name string) (*CliPermissions, error)
	MockCliAccountsReport     func(ctx context.Context) ([]string, []Record, error)

	MockCAHandlerAdd    func(ctx context.Context, reg *CAHandlerRegistration) (string, bool, error)
	MockCAHandlerLookup func(ctx context.Context, column, pattern string, projection []string) (Record, error)

	MockDBVersionGet    func(ctx context.Context) (string, string, error)
	MockSchemaReconcile func(ctx context.Context) (SchemaState, error)

	MockError error
}

// AccountAdd mock.
func (m *MockDB) AccountAdd(ctx context.Context, acc *Account) (string, bool, error) {
	if m.MockAccountAdd != nil {
		return m.MockAccountAdd(ctx, acc)
	}
	return "", false, m.MockError
}

// AccountUpdate mock.
func (m *MockDB) AccountUpdate(ctx context.Context, acc *Account) (string, error) {
	if m.MockAccountUpdate != nil {
		return m.MockAccountUpdate(ctx, acc)
	}
	return "", m.MockError
}

// AccountLookup mock.
func (m *MockDB) AccountLookup(ctx context.Context, column, pattern string) (Record, error) {
	if m.MockAccountLookup != nil {
		return m.MockAccountLookup(ctx, column, pattern)
	}
	return nil, m.MockError
}

// AccountDelete mock.
func (m *MockDB) AccountDelete(ctx context.Context, name string) (bool, error) {
	if m.MockAccountDelete != nil {
		return m.MockAccountDelete(ctx, name)
	}
	return false, m.MockError
}

// AccountJWKLoad mock.
func (m *MockDB) AccountJWKLoad(ctx context.Context, name string) (Record, error) {
	if m.MockAccountJWKLoad != nil {
		return m.MockAccountJWKLoad(ctx, name)
	}
	return nil, m.MockError
}

// AccountsReport mock.
func (m *MockDB) AccountsReport(ctx context.Context) ([]string, []Record, error) {
	if m.MockAccountsReport != nil {
		return m.MockAccountsReport(ctx)
	}
	return nil, nil, m.MockError
}

// OrderAdd mock.
func (m *MockDB) OrderAdd(ctx context.Context, o *Order) (string, error) {
	if m.MockOrderAdd != nil {
		return m.MockOrderAdd(ctx, o)
	}
	return "", m.MockError
}

// OrderUpdate mock.
func (m *MockDB) OrderUpdate(ctx context.Context, o *Order) error {
	if m.MockOrderUpdate != nil {
		return m.MockOrderUpdate(ctx, o)
	}
	return m.MockError
}

// OrderLookup mock.
func (m *MockDB) OrderLookup(ctx context.Context, column, pattern string, projection []string) (Record, error) {
	if m.MockOrderLookup != nil {
		return m.MockOrderLookup(ctx, column, pattern, projection)
	}
	return nil, m.MockError
}

// OrdersNonTerminalSearch mock.
func (m *MockDB) OrdersNonTerminalSearch(ctx context.Context, column, pattern string, projection []string) ([]Record, error) {
	if m.MockOrdersNonTerminalSearch != nil {
		return m.MockOrdersNonTerminalSearch(ctx, column, pattern, projection)
	}
	return nil, m.MockError
}

// AuthorizationAdd mock.
func (m *MockDB) AuthorizationAdd(ctx context.Context, az *Authorization) (string, error) {
	if m.MockAuthorizationAdd != nil {
		return m.MockAuthorizationAdd(ctx, az)
	}
	return "", m.MockError
}

// AuthorizationUpdate mock.
func (m *MockDB) AuthorizationUpdate(ctx context.Context, az *Authorization) (string, error) {
	if m.MockAuthorizationUpdate != nil {
		return m.MockAuthorizationUpdate(ctx, az)
	}
	return "", m.MockError
}

// AuthorizationLookup mock.
func (m *MockDB) AuthorizationLookup(ctx context.Context, column, pattern string, projection []string) (Record, error) {
	if m.MockAuthorizationLookup != nil {
		return m.MockAuthorizationLookup(ctx, column, pattern, projection)
	}
	return nil, m.MockError
}

// AuthorizationsSearch mock.
func (m *MockDB) AuthorizationsSearch(ctx context.Context, column, pattern string, projection []string) ([]Record, error) {
	if m.MockAuthorizationsSearch != nil {
		return m.MockAuthorizationsSearch(ctx, column, pattern, projection)
	}
	return nil, m.MockError
}

// AuthorizationsExpiredSearch mock.
func (m *MockDB) AuthorizationsExpiredSearch(ctx context.Context, column, pattern string, projection []string) ([]Record, error) {
	if m.MockAuthorizationsExpiredSearch != nil {
		return m.MockAuthorizationsExpiredSearch(ctx, column, pattern, projection)
	}
	return nil, m.MockError
}

// ChallengeAdd mock.
func (m *MockDB) ChallengeAdd(ctx context.Context, ch *Challenge) (string, error) {
	if m.MockChallengeAdd != nil {
		return m.MockChallengeAdd(ctx, ch)
	}
	return "", m.MockError
}

// ChallengeUpdate mock.
func (m *MockDB) ChallengeUpdate(ctx context.Context, ch *Challenge) error {
	if m.MockChallengeUpdate != nil {
		return m.MockChallengeUpdate(ctx, ch)
	}
	return m.MockError
}

// ChallengeLookup mock.
func (m *MockDB) ChallengeLookup(ctx context.Context, column, pattern string, projection []string) (Record, error) {
	if m.MockChallengeLookup != nil {
		return m.MockChallengeLookup(ctx, column, pattern, projection)
	}
	return nil, m.MockError
}

// ChallengesSearch mock.
func (m *MockDB) ChallengesSearch(ctx context.Context, column, pattern string, projection []string) ([]Record, error) {
	if m.MockChallengesSearch != nil {
		return m.MockChallengesSearch(ctx, column, pattern, projection)
	}
	return nil, m.MockError
}

// CertificateAdd mock.
func (m *MockDB) CertificateAdd(ctx context.Context, crt *Certificate) (string, bool, error) {
	if m.MockCertificateAdd != nil {
		return m.MockCertificateAdd(ctx, crt)
	}
	return "", false, m.MockError
}

// CertificateDelete mock.
func (m *MockDB) CertificateDelete(ctx context.Context, column, value string) (bool, error) {
	if m.MockCertificateDelete != nil {
		return m.MockCertificateDelete(ctx, column, value)
	}
	return false, m.MockError
}

// CertificateLookup mock.
func (m *MockDB) CertificateLookup(ctx context.Context, column, pattern string, projection []string) (Record, error) {
	if m.MockCertificateLookup != nil {
		return m.MockCertificateLookup(ctx, column, pattern, projection)
	}
	return nil, m.MockError
}

// CertificatesSearch mock.
func (m *MockDB) CertificatesSearch(ctx context.Context, column, pattern string, projection []string) ([]Record, error) {
	if m.MockCertificatesSearch != nil {
		return m.MockCertificatesSearch(ctx, column, pattern, projection)
	}
	return nil, m.MockError
}

// CertificateAccountCheck mock.
func (m *MockDB) CertificateAccountCheck(ctx context.Context, accountName, certRaw string) (string, error) {
	if m.MockCertificateAccountCheck != nil {
		return m.MockCertificateAccountCheck(ctx, accountName, certRaw)
	}
	return "", m.MockError
}

// CertificatesReport mock.
func (m *MockDB) CertificatesReport(ctx context.Context) ([]string, []Record, error) {
	if m.MockCertificatesReport != nil {
		return m.MockCertificatesReport(ctx)
	}
	return nil, nil, m.MockError
}

// NonceAdd mock.
func (m *MockDB) NonceAdd(ctx context.Context, nonce string) (string, error) {
	if m.MockNonceAdd != nil {
		return m.MockNonceAdd(ctx, nonce)
	}
	return "", m.MockError
}

// NonceCheck mock.
func (m *MockDB) NonceCheck(ctx context.Context, nonce string) (bool, error) {
	if m.MockNonceCheck != nil {
		return m.MockNonceCheck(ctx, nonce)
	}
	return false, m.MockError
}

// NonceDelete mock.
func (m *MockDB) NonceDelete(ctx context.Context, nonce string) (bool, error) {
	if m.MockNonceDelete != nil {
		return m.MockNonceDelete(ctx, nonce)
	}
	return false, m.MockError
}

// HousekeepingAdd mock.
func (m *MockDB) HousekeepingAdd(ctx context.Context, name, value string) (string, bool, error) {
	if m.MockHousekeepingAdd != nil {
		return m.MockHousekeepingAdd(ctx, name, value)
	}
	return "", false, m.MockError
}

// HousekeepingGet mock.
func (m *MockDB) HousekeepingGet(ctx context.Context, name string) (string, bool, error) {
	if m.MockHousekeepingGet != nil {
		return m.MockHousekeepingGet(ctx, name)
	}
	return "", false, m.MockError
}

// CliAccountAdd mock.
func (m *MockDB) CliAccountAdd(ctx context.Context, acc *CliAccount) (string, bool, error) {
	if m.MockCliAccountAdd != nil {
		return m.MockCliAccountAdd(ctx, acc)
	}
	return "", false, m.MockError
}

// CliAccountDelete mock.
func (m *MockDB) CliAccountDelete(ctx context.Context, name string) (bool, error) {
	if m.MockCliAccountDelete != nil {
		return m.MockCliAccountDelete(ctx, name)
	}
	return false, m.MockError
}

// CliAccountJWKLoad mock.
func (m *MockDB) CliAccountJWKLoad(ctx context.Context, name string) (Record, error) {
	if m.MockCliAccountJWKLoad != nil {
		return m.MockCliAccountJWKLoad(ctx, name)
	}
	return nil, m.MockError
}

// CliAccountPermissions mock.
func (m *MockDB) CliAccountPermissions(ctx context.Context, name string) (*CliPermissions, error) {
	if m.MockCliAccountPermissions != nil {
		return m.MockCliAccountPermissions(ctx, name)
	}
	return nil, m.MockError
}

// CliAccountsReport mock.
func (m *MockDB) CliAccountsReport(ctx context.Context) ([]string, []Record, error) {
	if m.MockCliAccountsReport != nil {
		return m.MockCliAccountsReport(ctx)
	}
	return nil, nil, m.MockError
}

// CAHandlerAdd mock.
func (m *MockDB) CAHandlerAdd(ctx context.Context, reg *CAHandlerRegistration) (string, bool, error) {
	if m.MockCAHandlerAdd != nil {
		return m.MockCAHandlerAdd(ctx, reg)
	}
	return "", false, m.MockError
}

// CAHandlerLookup mock.
func (m *MockDB) CAHandlerLookup(ctx context.Context, column, pattern string, projection []string) (Record, error) {
	if m.MockCAHandlerLookup != nil {
		return m.MockCAHandlerLookup(ctx, column, pattern, projection)
	}
	return nil, m.MockError
}

// DBVersionGet mock.
func (m *MockDB) DBVersionGet(ctx context.Context) (string, string, error) {
	if m.MockDBVersionGet != nil {
		return m.MockDBVersionGet(ctx)
	}
	return "", "", m.MockError
}

// SchemaReconcile mock.
func (m *MockDB) SchemaReconcile(ctx context.Context) (SchemaState, error) {
	if m.MockSchemaReconcile != nil {
		return m.MockSchemaReconcile(ctx)
	}
	return SchemaUnknown, m.MockError
}
