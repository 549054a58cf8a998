package nosql

import (
	"context"

	"github.com/certsecure/acmed/acme"
)

// accountReportFields is the fixed vocabulary of the accounts report: one
// row per account/order/authorization/challenge chain, fields flattened
// along the ownership path.
var accountReportFields = []string{
	"id", "name", "eab_kid", "contact", "created_at", "jwk", "alg",
	"order__id", "order__name", "order__status__id", "order__status__name",
	"order__notbefore", "order__notafter", "order__expires",
	"order__identifiers", "order__authorization__id", "order__authorization__name",
	"order__authorization__type", "order__authorization__value", "order__authorization__expires",
	"order__authorization__token", "order__authorization__created_at",
	"order__authorization__status__id", "order__authorization__status__name",
	"order__authorization__challenge__id", "order__authorization__challenge__name",
	"order__authorization__challenge__token", "order__authorization__challenge__expires",
	"order__authorization__challenge__type", "order__authorization__challenge__keyauthorization",
	"order__authorization__challenge__created_at", "order__authorization__challenge__status__id",
	"order__authorization__challenge__status__name",
}

// certificateReportFields is the fixed vocabulary of the certificates
// report: one row per certificate with its order and account context.
var certificateReportFields = []string{
	"id", "name", "cert_raw", "csr", "poll_identifier", "created_at", "issue_uts", "expire_uts",
	"order__id", "order__name", "order__status__name", "order__notbefore", "order__notafter", "order__expires",
	"order__identifiers", "order__account__name", "order__account__contact", "order__account__created_at",
	"order__account__jwk", "order__account__alg", "order__account__eab_kid",
}

// listDocs decodes every document of a table through the given unmarshal
// function, skipping corrupt entries with a warning.
func (db *DB) listDocs(table []byte, entity string, unmarshal func(db *DB, data []byte) (acme.Record, error)) ([]acme.Record, error) {
	entries, err := db.db.List(table)
	if err != nil {
		return nil, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error listing %ss", entity)
	}
	rows := []acme.Record{}
	for _, e := range entries {
		row, err := unmarshal(db, e.Value)
		if err != nil {
			db.logger.Warn("skipping corrupt document",
				"entity", entity, "key", string(e.Key), "error", err)
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// mergeUnder copies src fields into dst under the given prefix.
func mergeUnder(dst acme.Record, prefix string, src acme.Record) {
	for k, v := range src {
		dst[prefix+"__"+k] = v
	}
}

// AccountsReport walks the full ownership chain downward and returns one
// row per account/order/authorization/challenge combination, together with
// the ordered report field list. Entities without children do not produce
// rows; the report mirrors the active issuance chains.
func (db *DB) AccountsReport(ctx context.Context) ([]string, []acme.Record, error) {
	if err := checkDeadline(ctx); err != nil {
		return nil, nil, err
	}

	accounts, err := db.listDocs(accountTable, "account", unmarshalAccountFields)
	if err != nil {
		return nil, nil, err
	}
	orders, err := db.listDocs(orderTable, "order", unmarshalOrderFields)
	if err != nil {
		return nil, nil, err
	}
	authzs, err := db.listDocs(authzTable, "authz", unmarshalAuthzFields)
	if err != nil {
		return nil, nil, err
	}
	challenges, err := db.listDocs(challengeTable, "challenge", unmarshalChallengeFields)
	if err != nil {
		return nil, nil, err
	}

	ordersByAccount := groupBy(orders, "account_id")
	authzsByOrder := groupBy(authzs, "order_id")
	challengesByAuthz := groupBy(challenges, "authorization_id")

	rows := []acme.Record{}
	for _, acc := range accounts {
		accID, _ := acc["id"].(string)
		for _, o := range ordersByAccount[accID] {
			oID, _ := o["id"].(string)
			for _, az := range authzsByOrder[oID] {
				azID, _ := az["id"].(string)
				for _, ch := range challengesByAuthz[azID] {
					row := acme.Record{}
					for k, v := range acc {
						row[k] = v
					}
					mergeUnder(row, "order", o)
					mergeUnder(row, "order__authorization", az)
					mergeUnder(row, "order__authorization__challenge", ch)
					rows = append(rows, row.Project(accountReportFields))
				}
			}
		}
	}
	return accountReportFields, rows, nil
}

// groupBy buckets records by the string value of the given field.
func groupBy(rows []acme.Record, field string) map[string][]acme.Record {
	out := make(map[string][]acme.Record)
	for _, r := range rows {
		if k, ok := r[field].(string); ok && k != "" {
			out[k] = append(out[k], r)
		}
	}
	return out
}

// CertificatesReport returns one row per certificate with its order and
// account context joined, together with the ordered report field list.
// Certificates whose order reference is broken are dropped and counted.
func (db *DB) CertificatesReport(ctx context.Context) ([]string, []acme.Record, error) {
	rows, err := db.search(ctx, certPipeline, "name", "", nil)
	if err != nil {
		return nil, nil, err
	}
	out := make([]acme.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Project(certificateReportFields))
	}
	return certificateReportFields, out, nil
}
