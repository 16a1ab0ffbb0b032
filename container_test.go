package apphost

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeter interface {
	Greet() string
}

type englishGreeter struct{}

func (g *englishGreeter) Greet() string { return "hello" }

type closeTracker struct {
	name   string
	closed *[]string
	err    error
}

func (c *closeTracker) Close() error {
	*c.closed = append(*c.closed, c.name)
	return c.err
}

type quietCloser struct {
	closed *[]string
}

func (q *quietCloser) Close() { *q.closed = append(*q.closed, "quiet") }

func TestContainer_RegisterAndResolve(t *testing.T) {
	c := NewContainer()
	require.NoError(t, Register[greeter](c, &englishGreeter{}))

	g, err := Resolve[greeter](c)
	require.NoError(t, err)
	assert.Equal(t, "hello", g.Greet())
	assert.True(t, Has[greeter](c))
	assert.False(t, Has[*englishGreeter](c), "services are keyed by the registered type")

	assert.ErrorIs(t, Register[greeter](c, &englishGreeter{}), ErrServiceAlreadyRegistered)
	assert.ErrorIs(t, Register[greeter](c, nil), ErrServiceNil)

	_, err = Resolve[*closeTracker](c)
	assert.ErrorIs(t, err, ErrServiceNotFound)
	assert.Panics(t, func() { MustResolve[*closeTracker](c) })
}

func TestContainer_Lifetimes(t *testing.T) {
	c := NewContainer()
	factory := func(Resolver) (*closeTracker, error) {
		return &closeTracker{name: "x", closed: &[]string{}}, nil
	}

	t.Run("singleton", func(t *testing.T) {
		c := NewContainer()
		require.NoError(t, RegisterFactory(c, ServiceScopeSingleton, factory))
		a := MustResolve[*closeTracker](c)
		b := MustResolve[*closeTracker](c.CreateScope())
		assert.Same(t, a, b)
	})

	t.Run("transient", func(t *testing.T) {
		c := NewContainer()
		require.NoError(t, RegisterFactory(c, ServiceScopeTransient, factory))
		assert.NotSame(t, MustResolve[*closeTracker](c), MustResolve[*closeTracker](c))
	})

	t.Run("scoped", func(t *testing.T) {
		require.NoError(t, RegisterFactory(c, ServiceScopeScoped, factory))
		_, err := Resolve[*closeTracker](c)
		assert.ErrorIs(t, err, ErrScopedServiceFromRoot)

		s1, s2 := c.CreateScope(), c.CreateScope()
		a := MustResolve[*closeTracker](s1)
		assert.Same(t, a, MustResolve[*closeTracker](s1))
		assert.NotSame(t, a, MustResolve[*closeTracker](s2))
	})

	t.Run("invalid scope", func(t *testing.T) {
		err := RegisterFactory(NewContainer(), ServiceScope("forever"), factory)
		assert.ErrorIs(t, err, ErrInvalidServiceScope)
	})
}

func TestContainer_FactoryResolvesDependencies(t *testing.T) {
	c := NewContainer()
	require.NoError(t, Register[greeter](c, &englishGreeter{}))
	require.NoError(t, RegisterFactory(c, ServiceScopeSingleton, func(r Resolver) (string, error) {
		g, err := Resolve[greeter](r)
		if err != nil {
			return "", err
		}
		return g.Greet() + " world", nil
	}))

	assert.Equal(t, "hello world", MustResolve[string](c))
}

func TestContainer_FactoryErrorIsReturned(t *testing.T) {
	c := NewContainer()
	boom := errors.New("boom")
	require.NoError(t, RegisterFactory(c, ServiceScopeSingleton, func(Resolver) (*closeTracker, error) {
		return nil, boom
	}))

	_, err := Resolve[*closeTracker](c)
	assert.ErrorIs(t, err, boom)
}

func TestContainer_SingletonRetriesAfterFactoryError(t *testing.T) {
	c := NewContainer()
	ready := false
	require.NoError(t, RegisterFactory(c, ServiceScopeSingleton, func(Resolver) (*closeTracker, error) {
		if !ready {
			return nil, ErrServiceNil
		}
		return &closeTracker{name: "late"}, nil
	}))

	_, err := Resolve[*closeTracker](c)
	require.ErrorIs(t, err, ErrServiceNil)

	ready = true
	first := MustResolve[*closeTracker](c)
	assert.Equal(t, "late", first.name)
	assert.Same(t, first, MustResolve[*closeTracker](c))
}

func TestContainer_BorrowedSingletonStaysOpen(t *testing.T) {
	var closed []string
	c := NewContainer()
	require.NoError(t, RegisterBorrowed(c, func(Resolver) (*closeTracker, error) {
		return &closeTracker{name: "borrowed", closed: &closed}, nil
	}))

	MustResolve[*closeTracker](c)
	require.NoError(t, c.Close())
	assert.Empty(t, closed)
}

func TestScope_CloseInReverseOrder(t *testing.T) {
	var closed []string
	c := NewContainer()
	require.NoError(t, RegisterFactory(c, ServiceScopeScoped, func(Resolver) (*closeTracker, error) {
		return &closeTracker{name: "scoped", closed: &closed}, nil
	}))
	require.NoError(t, RegisterFactory(c, ServiceScopeTransient, func(Resolver) (*quietCloser, error) {
		return &quietCloser{closed: &closed}, nil
	}))

	s := c.CreateScope()
	MustResolve[*closeTracker](s)
	MustResolve[*quietCloser](s)

	require.NoError(t, s.Close())
	assert.Equal(t, []string{"quiet", "scoped"}, closed)

	require.NoError(t, s.Close(), "closing twice is a no-op")
	assert.Len(t, closed, 2)

	_, err := Resolve[*closeTracker](s)
	assert.ErrorIs(t, err, ErrScopeClosed)
}

func TestContainer_CloseSingletons(t *testing.T) {
	var closed []string
	failure := errors.New("close failed")
	c := NewContainer()
	require.NoError(t, Register(c, &closeTracker{name: "external", closed: &closed}))
	require.NoError(t, RegisterFactory(c, ServiceScopeSingleton, func(Resolver) (*quietCloser, error) {
		return &quietCloser{closed: &closed}, nil
	}))
	require.NoError(t, RegisterFactory(c, ServiceScopeSingleton, func(Resolver) (greeter, error) {
		return &englishGreeter{}, nil
	}))
	type failing struct{ *closeTracker }
	require.NoError(t, RegisterFactory(c, ServiceScopeSingleton, func(Resolver) (failing, error) {
		return failing{&closeTracker{name: "failing", closed: &closed, err: failure}}, nil
	}))

	MustResolve[*quietCloser](c)
	MustResolve[greeter](c)
	MustResolve[failing](c)

	err := c.Close()
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, []string{"failing", "quiet"}, closed, "instances the container did not create stay open")

	_, err = Resolve[greeter](c)
	assert.ErrorIs(t, err, ErrScopeClosed)
}
