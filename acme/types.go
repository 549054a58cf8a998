package acme

import "time"

// Record is a flattened, plain key/value view of one or more joined entities.
// Composite fields use a dotted-path namespace with "__" separators, e.g.
// "order__name" or "order__account__name". Records returned by the storage
// layer are copies; mutating them has no effect on persisted state.
type Record map[string]interface{}

// Project reduces the record to the given field list. Fields absent from the
// record appear in the result with a nil value so that every row of a
// projected result set has the same shape.
func (r Record) Project(fields []string) Record {
	out := make(Record, len(fields))
	for _, f := range fields {
		if v, ok := r[f]; ok {
			out[f] = v
		} else {
			out[f] = nil
		}
	}
	return out
}

// Identifier holds one subject of an order, e.g. a DNS name.
type Identifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Account is an ACME account registration. JWK carries the serialized public
// key material; it is the upsert key for AccountAdd. An empty field on input
// means "not supplied" and retains the stored value on merge.
type Account struct {
	Name      string
	JWK       string
	Alg       string
	Contact   []string
	EabKid    string
	CreatedAt time.Time
}

// Order is a certificate issuance request. Account references the owning
// account by name on input. Identifiers are immutable after creation.
// NotBefore/NotAfter/Expires are unix timestamps; zero means unset.
type Order struct {
	Name        string
	Account     string
	Identifiers []Identifier
	NotBefore   int64
	NotAfter    int64
	Expires     int64
	Status      Status
}

// Authorization is the proof obligation for one identifier of an order.
// Order references the owning order by name on input.
type Authorization struct {
	Name    string
	Order   string
	Type    string
	Value   string
	Token   string
	Expires int64
	Status  Status
}

// Challenge is one concrete validation method for an authorization.
// Authorization references the owning authorization by name on input.
// Expires and Validated are unix timestamps; zero means unset.
type Challenge struct {
	Name             string
	Authorization    string
	Type             string
	Token            string
	KeyAuthorization string
	Expires          int64
	Validated        int64
	Status           Status
}

// Certificate is an issued (or polling) certificate tied to an order.
// IssuedAt/ExpiresAt are unix timestamps. Error holds the last enrollment
// error detail, if any.
type Certificate struct {
	Name           string
	Order          string
	CSR            string
	Cert           string
	CertRaw        string
	Serial         string
	AKI            string
	IssuedAt       int64
	ExpiresAt      int64
	PollIdentifier string
	RenewalInfo    string
	HeaderInfo     string
	Error          string
}

// CliAccount is a command-line client account with admin permission flags.
type CliAccount struct {
	Name             string
	JWK              string
	Contact          []string
	CliAdmin         bool
	ReportAdmin      bool
	CertificateAdmin bool
}

// CliPermissions is the admin-flag view of a CliAccount.
type CliPermissions struct {
	CliAdmin         bool
	ReportAdmin      bool
	CertificateAdmin bool
}

// CAHandlerRegistration holds opaque state registered by an external CA
// integration. Value1/Value2 are handler-defined.
type CAHandlerRegistration struct {
	Name   string
	Value1 string
	Value2 string
}
