package factory_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/syssam/factory"
)

type User struct {
	ID    int64  `db:"id"`
	Name  string `json:"name"`
	Email string `factory:"email"`
	Nick  factory.Lazy[string]
}

type Pet struct {
	ID    int64
	Name  string
	Owner factory.Lazy[*User] `db:"owner_id"`
}

var seq atomic.Int64

type hookCounter struct {
	entity   int
	finalize int
	// seen records entities passed to Finalize together with whether they
	// were still pending and their id at that point.
	seen []string
}

type UserFactory struct {
	factory.Base[User]
	hooks *hookCounter
}

func (UserFactory) Config() factory.Config[User] {
	return factory.Config[User]{New: factory.Class[User]()}
}

func (d UserFactory) Entity(_ context.Context, u *User, _ factory.Env) (*User, error) {
	if d.hooks != nil {
		d.hooks.entity++
	}
	n := seq.Add(1)
	u.Name = fmt.Sprintf("user-%d", n)
	u.Email = fmt.Sprintf("user-%d@example.com", n)
	return u, nil
}

func (d UserFactory) Finalize(_ context.Context, u *User, _ factory.Env) error {
	if d.hooks != nil {
		d.hooks.finalize++
		d.hooks.seen = append(d.hooks.seen, fmt.Sprintf("id=%d pending=%v", u.ID, factory.Unresolved(u)))
	}
	return nil
}

// PetFactory builds pets owned by a user from users, or from the client
// pool when users is nil.
type PetFactory struct {
	factory.Base[Pet]
	users *factory.Factory[User]
}

func (PetFactory) Config() factory.Config[Pet] {
	return factory.Config[Pet]{New: factory.Class[Pet]()}
}

func (d PetFactory) Entity(_ context.Context, p *Pet, env factory.Env) (*Pet, error) {
	p.Name = "rex"
	if d.users != nil {
		p.Owner = factory.Sub(d.users)
	} else {
		p.Owner = factory.Related[User](env, UserFactory{})
	}
	return p, nil
}

// BareFactory has neither a constructor nor an Entity hook.
type BareFactory struct {
	factory.Base[User]
}

type Node struct {
	ID     int64
	Parent factory.Lazy[*Node]
}

type NodeFactory struct {
	factory.Base[Node]
}

func (NodeFactory) Config() factory.Config[Node] {
	return factory.Config[Node]{New: factory.Class[Node]()}
}

func (NodeFactory) Entity(_ context.Context, n *Node, env factory.Env) (*Node, error) {
	n.Parent = factory.Related[Node](env, NodeFactory{})
	return n, nil
}

// fakeSource assigns sequential ids and records every save.
type fakeSource struct {
	initialized bool
	inits       int
	saves       []any
	opts        []factory.SaveOptions
	nextID      int64
	err         error
}

func (s *fakeSource) IsInitialized() bool { return s.initialized }

func (s *fakeSource) Initialize(context.Context) error {
	s.inits++
	s.initialized = true
	return nil
}

func (s *fakeSource) Manager() factory.EntityManager { return s }

func (s *fakeSource) Save(_ context.Context, e any, opts factory.SaveOptions) (any, error) {
	if s.err != nil {
		return nil, s.err
	}
	if pending := factory.Unresolved(e); len(pending) > 0 {
		return nil, errors.New("save of unresolved attributes: " + strings.Join(pending, ","))
	}
	s.nextID++
	if err := factory.SetPrimaryKey(e, s.nextID); err != nil {
		return nil, err
	}
	s.saves = append(s.saves, e)
	s.opts = append(s.opts, opts)
	return e, nil
}

func (s *fakeSource) savedTypes() []string {
	out := make([]string, len(s.saves))
	for i, e := range s.saves {
		out[i] = factory.TypeName(e)
	}
	return out
}
