package acme

import (
	"testing"

	"github.com/smallstep/assert"
)

func TestStatuses_order(t *testing.T) {
	// Registry positions are part of the persisted format; identifier i+1 is
	// assigned to Statuses[i] and must never be reshuffled.
	expected := []Status{
		StatusInvalid,
		StatusPending,
		StatusReady,
		StatusProcessing,
		StatusValid,
		StatusExpired,
		StatusDeactivated,
		StatusRevoked,
	}
	assert.Equals(t, Statuses, expected)
}

func TestStatus_IsValid(t *testing.T) {
	for _, s := range Statuses {
		assert.True(t, s.IsValid())
	}
	assert.False(t, Status("sideways").IsValid())
	assert.False(t, Status("").IsValid())
}

func TestSchemaState_String(t *testing.T) {
	assert.Equals(t, SchemaUnknown.String(), "unknown")
	assert.Equals(t, SchemaChecked.String(), "checked")
	assert.Equals(t, SchemaCurrent.String(), "current")
	assert.Equals(t, SchemaMismatched.String(), "mismatched")
}
