package factory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/factory"
)

func TestMergePrecedence(t *testing.T) {
	t.Parallel()
	callSrc, instSrc, defSrc := &fakeSource{}, &fakeSource{}, &fakeSource{}
	callNew := func() *User { return &User{Name: "call"} }
	defNew := func() *User { return &User{Name: "definition"} }

	call := factory.Config[User]{Source: callSrc}
	inst := factory.Config[User]{
		Source:   instSrc,
		New:      nil,
		Required: []factory.Requirement{factory.Key("instance")},
	}
	def := factory.Config[User]{
		Source:   defSrc,
		New:      defNew,
		Override: delegate{},
		Required: []factory.Requirement{factory.Key("definition")},
	}

	t.Run("CallWins", func(t *testing.T) {
		got := factory.Merge(call, inst, def)
		assert.Same(t, callSrc, got.Source)
		assert.Equal(t, "definition", got.New().Name, "unset fields fall through")
		assert.Equal(t, []factory.Requirement{factory.Key("instance")}, got.Required)
		assert.Equal(t, delegate{}, got.Override)
	})

	t.Run("InstanceOverDefinition", func(t *testing.T) {
		got := factory.Merge(factory.Config[User]{}, inst, def)
		assert.Same(t, instSrc, got.Source)
	})

	t.Run("CallConstructor", func(t *testing.T) {
		got := factory.Merge(factory.Config[User]{New: callNew}, inst, def)
		assert.Equal(t, "call", got.New().Name)
	})

	t.Run("EmptyRequiredClears", func(t *testing.T) {
		got := factory.Merge(factory.Config[User]{Required: []factory.Requirement{}}, inst, def)
		assert.NotNil(t, got.Required)
		assert.Empty(t, got.Required)
	})

	t.Run("NoTiers", func(t *testing.T) {
		got := factory.Merge[User]()
		assert.Nil(t, got.Source)
		assert.Nil(t, got.New)
	})
}
