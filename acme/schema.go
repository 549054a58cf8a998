package acme

// SchemaState describes the schema/version guard's view of the persisted
// database. The guard moves Unknown -> Checked -> {Current, Mismatched};
// Mismatched leaves the old version persisted so the next startup retries.
type SchemaState int

const (
	// SchemaUnknown -- the persisted version has not been read yet.
	SchemaUnknown SchemaState = iota
	// SchemaChecked -- the persisted version has been read but not yet
	// reconciled against the running code's version.
	SchemaChecked
	// SchemaCurrent -- the persisted version matches the running code.
	SchemaCurrent
	// SchemaMismatched -- reconciliation failed; the old version remains
	// persisted. Reportable but non-fatal.
	SchemaMismatched
)

func (s SchemaState) String() string {
	switch s {
	case SchemaUnknown:
		return "unknown"
	case SchemaChecked:
		return "checked"
	case SchemaCurrent:
		return "current"
	case SchemaMismatched:
		return "mismatched"
	default:
		return "unsupported state"
	}
}
