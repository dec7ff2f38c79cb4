// internal/storage/storage_test.go
package storage_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ridemap/ridemap/internal/storage"
	"github.com/stretchr/testify/assert"
)

func TestErrNotFound_Wrapped(t *testing.T) {
	err := fmt.Errorf("account for session %q: %w", "abc", storage.ErrNotFound)

	assert.True(t, errors.Is(err, storage.ErrNotFound))
}
