package acme

import (
	"time"

	"github.com/pkg/errors"
	"go.step.sm/crypto/randutil"
)

var idLen = 32

// RandID generates a store-assigned opaque primary key.
func RandID() (val string, err error) {
	val, err = randutil.Alphanumeric(idLen)
	if err != nil {
		return "", WrapError(ErrorStoreUnavailableType, errors.Wrap(err, "error generating random alphanumeric ID"), "id generation failed")
	}
	return val, nil
}

// Clock that returns time in UTC rounded to seconds.
type Clock int

// Now returns the UTC time rounded to seconds.
func (c *Clock) Now() time.Time {
	return time.Now().UTC().Round(time.Second)
}

// SystemClock is the clock used by the storage layer for created/validated
// timestamps.
var SystemClock = new(Clock)
