package rbac

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_LoadAll(t *testing.T) {
	fa := newFakeAuthority()
	c := NewCatalog(fa, DefaultPermissionQuery(), nil)
	assert.False(t, c.Loaded())

	perms, err := c.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, perms, 5)
	assert.True(t, c.Loaded())

	p, ok := c.Lookup(30)
	require.True(t, ok)
	assert.Equal(t, "report:export", p.Key())
	assert.Equal(t, []int64{7, 8}, c.Unknown([]int64{10, 7, 20, 8}))
	assert.Empty(t, c.Unknown([]int64{10, 11}))
}

func TestCatalog_LoadFailureKeepsContents(t *testing.T) {
	fa := newFakeAuthority()
	c := NewCatalog(fa, DefaultPermissionQuery(), nil)
	_, err := c.LoadAll(context.Background())
	require.NoError(t, err)

	fa.SetFail("ListPermissions", remoteErr("list permissions", 0, ""))
	_, err = c.LoadAll(context.Background())

	var fetch *FetchError
	require.ErrorAs(t, err, &fetch)
	assert.Len(t, c.Permissions(), 5)
	assert.True(t, c.Loaded())
}

func TestCatalog_DisplayNameFor(t *testing.T) {
	c := NewCatalog(newFakeAuthority(), DefaultPermissionQuery(), nil)

	assert.Equal(t, "Cursos", c.DisplayNameFor(ResourceCourse))
	assert.Equal(t, "Exámenes Ocupacionales", c.DisplayNameFor(ResourceOccupationalExam))
	assert.Equal(t, "training plan", c.DisplayNameFor("training_plan"))

	c.SetLabels(map[string]string{"training_plan": "Planes de Formación", ResourceCourse: "Formaciones"})
	assert.Equal(t, "Planes de Formación", c.DisplayNameFor("training_plan"))
	assert.Equal(t, "Formaciones", c.DisplayNameFor(ResourceCourse))
	assert.Equal(t, "Usuarios", c.DisplayNameFor(ResourceUser))

	c.SetLabels(nil)
	assert.Equal(t, "Cursos", c.DisplayNameFor(ResourceCourse))
}

func TestGroupByResource(t *testing.T) {
	groups := GroupByResource(newFakeAuthority().perms)

	require.Len(t, groups, 3)
	assert.Equal(t, ResourceCourse, groups[0].ResourceType)
	assert.Equal(t, ResourceUser, groups[1].ResourceType)
	assert.Equal(t, ResourceReport, groups[2].ResourceType)
	assert.Equal(t, []int64{10, 11, 12}, groups[0].IDs())
	assert.Empty(t, GroupByResource(nil))
}

func TestSearchPermissions(t *testing.T) {
	c := NewCatalog(newFakeAuthority(), DefaultPermissionQuery(), nil)
	perms := newFakeAuthority().perms

	tests := []struct {
		term string
		want []int64
	}{
		{term: "", want: []int64{10, 11, 20, 12, 30}},
		{term: "COURSE", want: []int64{10, 11, 12}},
		{term: "delete", want: []int64{12}},
		{term: "exportar", want: []int64{30}},
		{term: "usuarios", want: []int64{20}},
		{term: "nothing", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			got := SearchPermissions(perms, tt.term, c.DisplayNameFor)
			assert.Equal(t, tt.want, nilIfEmpty(PermissionIDs(got)))
		})
	}
}

func nilIfEmpty(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	return ids
}

func TestFilterRoles(t *testing.T) {
	roles := newFakeAuthority().roles

	assert.Len(t, FilterRoles(roles, ""), 3)
	assert.Len(t, FilterRoles(roles, "   "), 3)

	got := FilterRoles(roles, "COORD")
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)

	got = FilterRoles(roles, "externo")
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].ID)

	assert.Empty(t, FilterRoles(roles, "zzz"))
}

func TestPaginate(t *testing.T) {
	items := make([]Role, 25)
	for i := range items {
		items[i] = Role{ID: int64(i + 1), Name: fmt.Sprintf("role_%d", i+1)}
	}

	assert.Len(t, Paginate(items, 0, 10), 10)
	assert.Len(t, Paginate(items, 1, 10), 10)
	last := Paginate(items, 2, 10)
	require.Len(t, last, 5)
	assert.Equal(t, int64(21), last[0].ID)
	assert.Empty(t, Paginate(items, 3, 10))
	assert.Empty(t, Paginate(items, -1, 10))
	assert.Empty(t, Paginate(items, 0, 0))
	assert.Equal(t, 3, PageCount(len(items), 10))
	assert.Equal(t, 0, PageCount(0, 10))
}

func TestRoleStore(t *testing.T) {
	fa := newFakeAuthority()
	s := NewRoleStore(fa, nil)

	_, err := s.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, s.Roles(), 3)

	s.Remove(3)
	_, ok := s.Get(3)
	assert.False(t, ok)
	assert.Len(t, s.Roles(), 2)

	fa.SetFail("ListRoles", remoteErr("list roles", 0, ""))
	_, err = s.LoadAll(context.Background())
	assert.ErrorIs(t, err, ErrFetch)
	assert.Len(t, s.Roles(), 2)
}
