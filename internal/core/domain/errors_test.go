package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKind(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", ErrorKind(nil))
	assert.Equal(t, "unsupported_role", ErrorKind(fmt.Errorf("%w: %q", ErrUnsupportedRole, "region")))
	assert.Equal(t, "validation_rejected", ErrorKind(reject(errRejectedCast)))
	assert.Equal(t, "profile_not_ready", ErrorKind(ErrProfileNotReady))
	assert.Equal(t, "internal", ErrorKind(errors.New("boom")))
}
