package nosql

import (
	"context"
	"encoding/json"
	"time"

	nosqlDB "github.com/smallstep/nosql"

	"github.com/certsecure/acmed/acme"
)

// dbCert is the persisted form of an issued (or polling) certificate.
// OrderID holds the resolved primary key of the originating order.
type dbCert struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	OrderID        string    `json:"order_id"`
	CSR            string    `json:"csr"`
	Cert           string    `json:"cert"`
	CertRaw        string    `json:"cert_raw"`
	Serial         string    `json:"serial"`
	AKI            string    `json:"aki"`
	IssuedAt       int64     `json:"issue_uts,omitempty"`
	ExpiresAt      int64     `json:"expire_uts,omitempty"`
	PollIdentifier string    `json:"poll_identifier"`
	RenewalInfo    string    `json:"renewal_info"`
	HeaderInfo     string    `json:"header_info"`
	Error          string    `json:"error"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (dbc *dbCert) clone() *dbCert {
	nu := *dbc
	return &nu
}

func (dbc *dbCert) fields() acme.Record {
	return acme.Record{
		"id":              dbc.ID,
		"name":            dbc.Name,
		"order_id":        dbc.OrderID,
		"csr":             dbc.CSR,
		"cert":            dbc.Cert,
		"cert_raw":        dbc.CertRaw,
		"serial":          dbc.Serial,
		"aki":             dbc.AKI,
		"issue_uts":       dbc.IssuedAt,
		"expire_uts":      dbc.ExpiresAt,
		"poll_identifier": dbc.PollIdentifier,
		"renewal_info":    dbc.RenewalInfo,
		"header_info":     dbc.HeaderInfo,
		"error":           dbc.Error,
		"created_at":      dbc.CreatedAt,
	}
}

func unmarshalCertFields(_ *DB, data []byte) (acme.Record, error) {
	dbc := new(dbCert)
	if err := json.Unmarshal(data, dbc); err != nil {
		return nil, err
	}
	return dbc.fields(), nil
}

// getDBCert retrieves and unmarshals a dbCert.
func (db *DB) getDBCert(_ context.Context, id string) (*dbCert, error) {
	data, err := db.db.Get(certTable, []byte(id))
	if nosqlDB.IsErrNotFound(err) {
		return nil, acme.NewError(acme.ErrorRecordNotFoundType, "certificate %s not found", id)
	} else if err != nil {
		return nil, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error loading certificate %s", id)
	}
	dbc := new(dbCert)
	if err := json.Unmarshal(data, dbc); err != nil {
		return nil, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error unmarshaling certificate %s", id)
	}
	return dbc, nil
}

// CertificateAdd creates or updates a certificate, keyed by name. On an
// existing record an enrollment error updates only the error and poll
// identifier; otherwise every supplied field is merged over the stored
// document. Returns the certificate ID and whether a record was created.
func (db *DB) CertificateAdd(ctx context.Context, crt *acme.Certificate) (string, bool, error) {
	if err := checkDeadline(ctx); err != nil {
		return "", false, err
	}
	if crt.Name == "" {
		return "", false, acme.NewError(acme.ErrorStoreUnavailableType, "certificate name cannot be empty")
	}

	if id, ok, err := db.nameToID(certByNameTable, crt.Name); err != nil {
		return "", false, err
	} else if ok {
		old, err := db.getDBCert(ctx, id)
		if err != nil {
			return "", false, err
		}
		nu := old.clone()
		if crt.Error != "" {
			nu.Error = crt.Error
			if crt.PollIdentifier != "" {
				nu.PollIdentifier = crt.PollIdentifier
			}
		} else {
			if crt.CSR != "" {
				nu.CSR = crt.CSR
			}
			if crt.Cert != "" {
				nu.Cert = crt.Cert
			}
			if crt.CertRaw != "" {
				nu.CertRaw = crt.CertRaw
			}
			if crt.Serial != "" {
				nu.Serial = crt.Serial
			}
			if crt.AKI != "" {
				nu.AKI = crt.AKI
			}
			if crt.IssuedAt != 0 {
				nu.IssuedAt = crt.IssuedAt
			}
			if crt.ExpiresAt != 0 {
				nu.ExpiresAt = crt.ExpiresAt
			}
			if crt.PollIdentifier != "" {
				nu.PollIdentifier = crt.PollIdentifier
			}
			if crt.RenewalInfo != "" {
				nu.RenewalInfo = crt.RenewalInfo
			}
			if crt.HeaderInfo != "" {
				nu.HeaderInfo = crt.HeaderInfo
			}
		}
		if err := db.save(ctx, id, nu, old, "certificate", certTable); err != nil {
			return "", false, err
		}
		db.logger.Debug("certificate merged", "name", crt.Name, "id", id, "enrollment_error", crt.Error != "")
		return id, false, nil
	}

	orderID, ok, err := db.nameToID(orderByNameTable, crt.Order)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, acme.NewError(acme.ErrorDanglingReferenceType, "order %s referenced by certificate %s not found", crt.Order, crt.Name)
	}

	id, err := acme.RandID()
	if err != nil {
		return "", false, err
	}
	dbc := &dbCert{
		ID:             id,
		Name:           crt.Name,
		OrderID:        orderID,
		CSR:            crt.CSR,
		Cert:           crt.Cert,
		CertRaw:        crt.CertRaw,
		Serial:         crt.Serial,
		AKI:            crt.AKI,
		IssuedAt:       crt.IssuedAt,
		ExpiresAt:      crt.ExpiresAt,
		PollIdentifier: crt.PollIdentifier,
		RenewalInfo:    crt.RenewalInfo,
		HeaderInfo:     crt.HeaderInfo,
		Error:          crt.Error,
		CreatedAt:      acme.SystemClock.Now(),
	}
	if err := db.setNameIndex(certByNameTable, crt.Name, id); err != nil {
		return "", false, err
	}
	if err := db.save(ctx, id, dbc, nil, "certificate", certTable); err != nil {
		db.db.Del(certByNameTable, []byte(crt.Name))
		return "", false, err
	}
	db.logger.Debug("certificate created", "name", crt.Name, "id", id, "order", crt.Order)
	return id, true, nil
}

// CertificateDelete removes the first certificate whose column exactly
// equals the value. Deleting an absent certificate is not an error.
func (db *DB) CertificateDelete(ctx context.Context, column, value string) (bool, error) {
	if err := checkDeadline(ctx); err != nil {
		return false, err
	}

	var (
		id   string
		name string
	)
	switch column {
	case "name":
		i, ok, err := db.nameToID(certByNameTable, value)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		id, name = i, value
	default:
		entries, err := db.db.List(certTable)
		if err != nil {
			return false, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error listing certificates")
		}
		for _, e := range entries {
			dbc := new(dbCert)
			if err := json.Unmarshal(e.Value, dbc); err != nil {
				continue
			}
			if v, ok := dbc.fields()[column].(string); ok && v == value {
				id, name = dbc.ID, dbc.Name
				break
			}
		}
		if id == "" {
			return false, nil
		}
	}

	if err := db.db.Del(certTable, []byte(id)); err != nil {
		return false, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error deleting certificate %s", name)
	}
	if err := db.db.Del(certByNameTable, []byte(name)); err != nil {
		return false, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error deleting certificate index %s", name)
	}
	db.logger.Debug("certificate deleted", "name", name, "id", id)
	return true, nil
}

// CertificateLookup returns the first certificate whose column matches the
// pattern, with its order and account context joined, or an empty record.
func (db *DB) CertificateLookup(ctx context.Context, column, pattern string, projection []string) (acme.Record, error) {
	return db.lookup(ctx, certPipeline, column, pattern, projection)
}

// CertificatesSearch returns all certificates whose column matches the
// pattern, with their order and account context joined.
func (db *DB) CertificatesSearch(ctx context.Context, column, pattern string, projection []string) ([]acme.Record, error) {
	return db.search(ctx, certPipeline, column, pattern, projection)
}

// CertificateAccountCheck verifies that the certificate was issued under the
// given account and returns the originating order's name. An empty account
// name means the request was signed with the domain key, which is accepted
// for any known certificate. An unknown certificate or a mismatched account
// yields an empty order name.
func (db *DB) CertificateAccountCheck(ctx context.Context, accountName, certRaw string) (string, error) {
	crt, err := db.CertificateLookup(ctx, "cert_raw", certRaw, []string{"name", "order__name"})
	if err != nil {
		return "", err
	}
	orderName, _ := crt["order__name"].(string)
	if orderName == "" {
		db.logger.Debug("certificate not found for account check")
		return "", nil
	}
	if accountName == "" {
		db.logger.Debug("account check passed with domain key", "order", orderName)
		return orderName, nil
	}
	order, err := db.OrderLookup(ctx, "name", orderName, []string{"name", "account__name"})
	if err != nil {
		return "", err
	}
	if owner, _ := order["account__name"].(string); owner != accountName {
		db.logger.Debug("account check failed", "order", orderName, "account", accountName)
		return "", nil
	}
	return orderName, nil
}

// certPipeline joins the originating order and its account.
var certPipeline = &pipeline{
	entity: "certificate",
	table:  certTable,
	index:  certByNameTable,
	leaf:   unmarshalCertFields,
	hops: []hop{
		{prefix: "order", idField: "order_id", table: orderTable, unmarshal: unmarshalOrderFields},
		{prefix: "order__account", idField: "order__account_id", table: accountTable, unmarshal: unmarshalAccountFields},
	},
	routes: map[string]string{
		"order__id":                  "order",
		"order__name":                "order",
		"order__status__id":          "order",
		"order__status__name":        "order",
		"order__identifiers":         "order",
		"order__notbefore":           "order",
		"order__notafter":            "order",
		"order__expires":             "order",
		"order__account__id":         "order__account",
		"order__account__name":       "order__account",
		"order__account__contact":    "order__account",
		"order__account__jwk":        "order__account",
		"order__account__alg":        "order__account",
		"order__account__eab_kid":    "order__account",
		"order__account__created_at": "order__account",
	},
}
