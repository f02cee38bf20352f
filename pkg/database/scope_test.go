package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetScope_Missing(t *testing.T) {
	_, ok := GetScope(context.Background())
	assert.False(t, ok)

	_, ok = GetScope(SetScope(context.Background(), &Scope{}))
	assert.False(t, ok, "scope without a connection is not usable")
}

func TestScope_CloseReleasesOnce(t *testing.T) {
	released := 0
	scope := &Scope{release: func() { released++ }}

	scope.Close()
	scope.Close()

	assert.Equal(t, 1, released)
}

func TestScope_CloseNil(t *testing.T) {
	var scope *Scope
	assert.NotPanics(t, scope.Close)
}
