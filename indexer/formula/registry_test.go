package formula

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryLookupFindsRegisteredFormula(t *testing.T) {
	r := NewRegistry()
	r.Register(Registration{Type: TypeContract, Name: "foo", Compute: func(env *Env) (any, error) { return nil, nil }})

	reg, err := r.Lookup(TypeContract, "foo")
	require.NoError(t, err)
	require.Equal(t, "foo", reg.Name)
}

func TestRegistryLookupMissReturnsNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup(TypeContract, "missing")
	require.Error(t, err)
	var fe *Error
	require.True(t, errors.As(err, &fe))
	require.Equal(t, KindNotFound, fe.Kind)
}

func TestRegistryRegisterReplacesExisting(t *testing.T) {
	r := NewRegistry()
	r.Register(Registration{Type: TypeAccount, Name: "a", Dynamic: false})
	r.Register(Registration{Type: TypeAccount, Name: "a", Dynamic: true})

	reg, err := r.Lookup(TypeAccount, "a")
	require.NoError(t, err)
	require.True(t, reg.Dynamic)
}

func TestRegistryDistinguishesTypeFromName(t *testing.T) {
	r := NewRegistry()
	r.Register(Registration{Type: TypeContract, Name: "x"})
	_, err := r.Lookup(TypeValidator, "x")
	require.Error(t, err)
}
