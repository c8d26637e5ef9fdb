package permission

import (
	"testing"

	"github.com/fitteam/fitlib/internal/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(items []Item) []string {
	var out []string
	for _, it := range items {
		out = append(out, it.Key)
		for _, c := range it.Children {
			out = append(out, c.Key)
		}
	}
	return out
}

func TestFilterByGrade(t *testing.T) {
	table := Default()
	tests := []struct {
		grade models.Grade
		want  []string
	}{
		{models.GradeGuest, []string{"dashboard", "notices", "tools"}},
		{models.GradeMember, []string{"dashboard", "notices", "blog", "vacations", "equipment", "tools", "reports"}},
		{models.GradeLeader, []string{"dashboard", "notices", "blog", "hr", "vacations", "equipment", "tools", "reports"}},
		{models.GradeAdmin, []string{"dashboard", "notices", "blog", "hr", "vacations", "equipment", "tools", "reports",
			"admin", "admin.users", "admin.holidays", "admin.audit"}},
		{models.Grade("intern"), nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.grade), func(t *testing.T) {
			if diff := cmp.Diff(tt.want, keys(table.Filter(tt.grade))); diff != "" {
				t.Errorf("Filter(%s) mismatch (-want +got):\n%s", tt.grade, diff)
			}
		})
	}
}

func TestAllowed(t *testing.T) {
	table := Default()
	tests := []struct {
		key    string
		access Access
		grade  models.Grade
		want   bool
	}{
		{"notices", Read, models.GradeGuest, true},
		{"notices", Write, models.GradeMember, false},
		{"notices", Write, models.GradeLeader, true},
		{"hr", Read, models.GradeMember, false},
		{"hr", Read, models.GradeLeader, true},
		{"hr", Write, models.GradeLeader, false},
		{"hr", Write, models.GradeAdmin, true},
		{"dashboard", Write, models.GradeAdmin, false},
		{"admin.audit", Write, models.GradeAdmin, false},
		{"admin.users", Write, models.GradeAdmin, true},
		{"unknown", Read, models.GradeAdmin, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, table.Allowed(tt.key, tt.access, tt.grade), "%s %s as %s", tt.access, tt.key, tt.grade)
	}
}

func TestParseValidation(t *testing.T) {
	cases := map[string]string{
		"empty":          `menus: []`,
		"missing key":    "menus:\n  - title: x\n    read_grade: guest\n",
		"bad read":       "menus:\n  - key: a\n    read_grade: owner\n",
		"write below":    "menus:\n  - key: a\n    read_grade: leader\n    write_grade: member\n",
		"duplicate key":  "menus:\n  - key: a\n    read_grade: guest\n  - key: a\n    read_grade: guest\n",
		"child bad":      "menus:\n  - key: a\n    read_grade: guest\n    children:\n      - key: b\n        read_grade: nobody\n",
		"not yaml":       "menus: [",
		"child dup root": "menus:\n  - key: a\n    read_grade: guest\n    children:\n      - key: a\n        read_grade: guest\n",
	}
	for name, src := range cases {
		_, err := Parse([]byte(src))
		assert.Error(t, err, name)
	}
}

func TestParseSortsByOrder(t *testing.T) {
	table, err := Parse([]byte(`menus:
  - key: b
    title: B
    path: /b
    order: 2
    read_grade: guest
  - key: a
    title: A
    path: /a
    order: 1
    read_grade: guest
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys(table.Items()))
	it, ok := table.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, "/b", it.Path)
}

func TestFilterDropsEmptyParent(t *testing.T) {
	table, err := Parse([]byte(`menus:
  - key: group
    title: Group
    order: 1
    read_grade: guest
    children:
      - key: group.secret
        title: Secret
        path: /secret
        read_grade: admin
  - key: page
    title: Page
    path: /page
    order: 2
    read_grade: guest
    children:
      - key: page.secret
        title: Secret
        path: /page/secret
        read_grade: admin
`))
	require.NoError(t, err)

	got := table.Filter(models.GradeMember)
	require.Len(t, got, 1)
	assert.Equal(t, "page", got[0].Key)
	assert.Empty(t, got[0].Children)

	// Filtering must not mutate the table.
	assert.Len(t, table.Filter(models.GradeAdmin)[0].Children, 1)
}
