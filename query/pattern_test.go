package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafton-db/grafton/store"
)

// seedSocial builds the small fixture graph used across the query tests:
// two people and a company, with Alice knowing Bob and Bob working at
// Acme. Returns the store and the three node ids in insertion order.
func seedSocial(t *testing.T) (*store.Store, int64, int64, int64) {
	t.Helper()
	s, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	alice, err := s.InsertNode(&store.Node{Type: "Person", Properties: map[string]any{"name": "Alice", "age": 34}})
	require.NoError(t, err)
	bob, err := s.InsertNode(&store.Node{Type: "Person", Properties: map[string]any{"name": "Bob", "age": 28}})
	require.NoError(t, err)
	acme, err := s.InsertNode(&store.Node{Type: "Company", Properties: map[string]any{"name": "Acme"}})
	require.NoError(t, err)

	_, err = s.InsertEdge(&store.Edge{Type: "KNOWS", From: alice, To: bob, Properties: map[string]any{"since": 2019}})
	require.NoError(t, err)
	_, err = s.InsertEdge(&store.Edge{Type: "WORKS_AT", From: bob, To: acme})
	require.NoError(t, err)

	return s, alice, bob, acme
}

func TestSingleNodePattern(t *testing.T) {
	s, alice, bob, _ := seedSocial(t)

	res, err := New(s).Start("p", "Person").End("p").Exec()
	require.NoError(t, err)
	require.Len(t, res.Bindings, 2)
	require.Equal(t, 0, res.PathLength)

	ids := []int64{res.Bindings[0].Node("p").ID, res.Bindings[1].Node("p").ID}
	require.ElementsMatch(t, []int64{alice, bob}, ids)
}

func TestSingleNodeWithFilter(t *testing.T) {
	s, alice, _, _ := seedSocial(t)

	res, err := New(s).
		Start("p", "Person").
		End("p").
		Where("p", Filters{"name": Eq("Alice")}).
		Exec()
	require.NoError(t, err)
	require.Len(t, res.Bindings, 1)
	require.Equal(t, alice, res.Bindings[0].Node("p").ID)
	require.Equal(t, "Alice", res.Bindings[0].Node("p").Properties["name"])
}

func TestTwoHopPattern(t *testing.T) {
	s, alice, bob, acme := seedSocial(t)

	res, err := New(s).
		Start("p", "Person").
		Through("KNOWS", store.DirectionOut).
		Node("f", "Person").
		Through("WORKS_AT", store.DirectionOut).
		End("c", "Company").
		Where("p", Filters{"id": Eq(alice)}).
		Exec()
	require.NoError(t, err)
	require.Len(t, res.Bindings, 1)
	require.Equal(t, 2, res.PathLength)

	b := res.Bindings[0]
	require.Equal(t, alice, b.Node("p").ID)
	require.Equal(t, bob, b.Node("f").ID)
	require.Equal(t, acme, b.Node("c").ID)
}

func TestIncomingDirection(t *testing.T) {
	s, alice, bob, _ := seedSocial(t)

	// Who does Bob know from, traversed against the edge direction.
	res, err := New(s).
		Start("f", "Person").
		Through("KNOWS", store.DirectionIn).
		End("p", "Person").
		Where("f", Filters{"id": Eq(bob)}).
		Exec()
	require.NoError(t, err)
	require.Len(t, res.Bindings, 1)
	require.Equal(t, alice, res.Bindings[0].Node("p").ID)
}

func TestBothDirection(t *testing.T) {
	s, alice, bob, _ := seedSocial(t)

	res, err := New(s).
		Start("a", "Person").
		Through("KNOWS", store.DirectionBoth).
		End("b", "Person").
		Exec()
	require.NoError(t, err)
	// a=Alice,b=Bob and a=Bob,b=Alice.
	require.Len(t, res.Bindings, 2)
	for _, b := range res.Bindings {
		require.NotEqual(t, b.Node("a").ID, b.Node("b").ID)
		require.ElementsMatch(t, []int64{alice, bob}, []int64{b.Node("a").ID, b.Node("b").ID})
	}
}

func TestEdgeVariable(t *testing.T) {
	s, _, _, _ := seedSocial(t)

	res, err := New(s).
		Start("p", "Person").
		Through("KNOWS", store.DirectionOut).As("k").
		End("f", "Person").
		Exec()
	require.NoError(t, err)
	require.Len(t, res.Bindings, 1)

	k := res.Bindings[0].Edge("k")
	require.NotNil(t, k)
	require.Equal(t, "KNOWS", k.Type)
	require.Equal(t, float64(2019), k.Properties["since"])
}

func TestEdgeFilter(t *testing.T) {
	s, _, _, _ := seedSocial(t)

	res, err := New(s).
		Start("p", "Person").
		Through("KNOWS", store.DirectionOut).As("k").
		End("f", "Person").
		Where("k", Filters{"since": Gt(2020)}).
		Exec()
	require.NoError(t, err)
	require.Empty(t, res.Bindings)
}

func TestCyclicPattern(t *testing.T) {
	s, err := store.OpenMemory()
	require.NoError(t, err)
	defer s.Close()

	a, _ := s.InsertNode(&store.Node{Type: "Person"})
	b, _ := s.InsertNode(&store.Node{Type: "Person"})
	c, _ := s.InsertNode(&store.Node{Type: "Person"})
	s.InsertEdge(&store.Edge{Type: "KNOWS", From: a, To: b})
	s.InsertEdge(&store.Edge{Type: "KNOWS", From: b, To: c})
	s.InsertEdge(&store.Edge{Type: "KNOWS", From: c, To: a})

	res, err := New(s).
		Start("x", "Person").
		Through("KNOWS", store.DirectionOut).
		Node("y", "Person").
		Through("KNOWS", store.DirectionOut).
		Node("z", "Person").
		Through("KNOWS", store.DirectionOut).
		End("x").
		Exec()
	require.NoError(t, err)
	// The triangle closes from each of its three corners.
	require.Len(t, res.Bindings, 3)
	for _, bnd := range res.Bindings {
		require.NotNil(t, bnd.Node("x"))
		require.NotEqual(t, bnd.Node("x").ID, bnd.Node("y").ID)
	}
}

func TestFilterOperators(t *testing.T) {
	s, _, _, _ := seedSocial(t)

	cases := []struct {
		name string
		f    Filter
		want int
	}{
		{"eq", Eq(34), 1},
		{"ne", Ne(34), 1},
		{"gt", Gt(28), 1},
		{"gte", Gte(28), 2},
		{"lt", Lt(34), 1},
		{"lte", Lte(34), 2},
		{"in", In(28, 34), 2},
		{"in miss", In(99), 0},
		{"in empty", In(), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := New(s).
				Start("p", "Person").
				End("p").
				Where("p", Filters{"age": tc.f}).
				Exec()
			require.NoError(t, err)
			require.Len(t, res.Bindings, tc.want)
		})
	}
}

func TestOrderLimitOffset(t *testing.T) {
	s, err := store.OpenMemory()
	require.NoError(t, err)
	defer s.Close()

	for _, name := range []string{"c", "a", "b", "d"} {
		_, err := s.InsertNode(&store.Node{Type: "Item", Properties: map[string]any{"name": name}})
		require.NoError(t, err)
	}

	names := func(res *Result) []string {
		var out []string
		for _, b := range res.Bindings {
			out = append(out, b.Node("i").Properties["name"].(string))
		}
		return out
	}

	res, err := New(s).Start("i", "Item").End("i").OrderBy("i", "name").Exec()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "d"}, names(res))

	res, err = New(s).Start("i", "Item").End("i").OrderByDesc("i", "name").Limit(2).Exec()
	require.NoError(t, err)
	require.Equal(t, []string{"d", "c"}, names(res))

	res, err = New(s).Start("i", "Item").End("i").OrderBy("i", "name").Limit(2).Offset(1).Exec()
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c"}, names(res))

	// Bare offset without a limit still skips.
	res, err = New(s).Start("i", "Item").End("i").OrderBy("i", "name").Offset(3).Exec()
	require.NoError(t, err)
	require.Equal(t, []string{"d"}, names(res))
}

func TestSelectRestrictsProjection(t *testing.T) {
	s, _, _, acme := seedSocial(t)

	res, err := New(s).
		Start("p", "Person").
		Through("KNOWS", store.DirectionOut).
		Node("f", "Person").
		Through("WORKS_AT", store.DirectionOut).
		End("c", "Company").
		Select("c").
		Exec()
	require.NoError(t, err)
	require.Len(t, res.Bindings, 1)
	require.Equal(t, acme, res.Bindings[0].Node("c").ID)
	require.Nil(t, res.Bindings[0].Node("p"))
	require.Nil(t, res.Bindings[0].Node("f"))
}

func TestFirst(t *testing.T) {
	s, _, _, _ := seedSocial(t)

	b, err := New(s).
		Start("p", "Person").
		End("p").
		OrderBy("p", "name").
		First()
	require.NoError(t, err)
	require.NotNil(t, b)
	require.Equal(t, "Alice", b.Node("p").Properties["name"])

	b, err = New(s).
		Start("p", "Person").
		End("p").
		Where("p", Filters{"name": Eq("Nobody")}).
		First()
	require.NoError(t, err)
	require.Nil(t, b)
}

func TestCount(t *testing.T) {
	s, _, _, _ := seedSocial(t)

	n, err := New(s).Start("p", "Person").End("p").Count()
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	n, err = New(s).
		Start("p", "Person").
		Through("KNOWS", store.DirectionOut).
		End("f", "Person").
		Count()
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestEmptyResultIsNotAnError(t *testing.T) {
	s, err := store.OpenMemory()
	require.NoError(t, err)
	defer s.Close()

	res, err := New(s).Start("p", "Person").End("p").Exec()
	require.NoError(t, err)
	require.Empty(t, res.Bindings)
}

func TestBuilderIsPureValue(t *testing.T) {
	s, _, _, _ := seedSocial(t)

	base := New(s).Start("p", "Person").End("p")
	// Running terminals twice yields the same result; building does not
	// consume the pattern.
	for i := 0; i < 2; i++ {
		res, err := base.Exec()
		require.NoError(t, err)
		require.Len(t, res.Bindings, 2)
	}
	n, err := base.Count()
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestValidationErrors(t *testing.T) {
	s, err := store.OpenMemory()
	require.NoError(t, err)
	defer s.Close()

	cases := []struct {
		name string
		p    *Pattern
		want error
	}{
		{
			"empty pattern",
			New(s),
			ErrInvalidPattern,
		},
		{
			"missing start",
			New(s).Node("p", "Person"),
			ErrInvalidPattern,
		},
		{
			"edge without type",
			New(s).Start("p").Through("", store.DirectionOut).End("f"),
			ErrInvalidPattern,
		},
		{
			"edge without direction",
			New(s).Start("p").Through("KNOWS", "").End("f"),
			ErrInvalidPattern,
		},
		{
			"trailing edge",
			New(s).Start("p").Through("KNOWS", store.DirectionOut),
			ErrInvalidPattern,
		},
		{
			"not closed with end",
			New(s).Start("p").Through("KNOWS", store.DirectionOut).Node("f"),
			ErrInvalidPattern,
		},
		{
			"two node steps in a row",
			New(s).Start("p").Node("q").End("p"),
			ErrInvalidPattern,
		},
		{
			"duplicate variable",
			New(s).Start("p").Through("KNOWS", store.DirectionOut).Node("p").Through("KNOWS", store.DirectionOut).End("x"),
			ErrInvalidPattern,
		},
		{
			"bad identifier",
			New(s).Start("p;drop").End("p;drop"),
			ErrInvalidPattern,
		},
		{
			"where unknown variable",
			New(s).Start("p").End("p").Where("q", Filters{"x": Eq(1)}),
			ErrUndefinedVariable,
		},
		{
			"select unknown variable",
			New(s).Start("p").End("p").Select("q"),
			ErrUndefinedVariable,
		},
		{
			"orderBy unknown variable",
			New(s).Start("p").End("p").OrderBy("q", "name"),
			ErrUndefinedVariable,
		},
		{
			"cyclic type mismatch",
			New(s).Start("p", "Person").Through("KNOWS", store.DirectionOut).End("p", "Company"),
			ErrCyclicTypeMismatch,
		},
		{
			"single node type mismatch",
			New(s).Start("p", "Person").End("p", "Company"),
			ErrCyclicTypeMismatch,
		},
		{
			"bad filter operator",
			New(s).Start("p").End("p").Where("p", Filters{"x": {Op: "like", Value: "%a%"}}),
			ErrInvalidFilterOperator,
		},
		{
			"bad filter key",
			New(s).Start("p").End("p").Where("p", Filters{"x; --": Eq(1)}),
			ErrInvalidPattern,
		},
		{
			"as without through",
			New(s).Start("p").As("e").End("p"),
			ErrInvalidPattern,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := tc.p.Compile()
			require.ErrorIs(t, err, tc.want)

			// Terminals surface the same error without touching the db.
			_, err = tc.p.Exec()
			require.ErrorIs(t, err, tc.want)
			_, err = tc.p.Count()
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestPatternErrorDetail(t *testing.T) {
	s, err := store.OpenMemory()
	require.NoError(t, err)
	defer s.Close()

	_, _, err = New(s).Start("p").End("p").Where("ghost", Filters{"x": Eq(1)}).Compile()
	require.ErrorIs(t, err, ErrUndefinedVariable)

	var perr *PatternError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "ghost", perr.Variable)
}
