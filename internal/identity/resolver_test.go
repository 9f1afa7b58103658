package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Haseeb-Ahmed-Spectreco/JIRA/internal/models"
)

func strPtr(s string) *string { return &s }

func TestResolve_BothEmpty(t *testing.T) {
	resolved := Resolve(nil, nil)

	assert.Empty(t, resolved)
}

func TestResolve_LocalFieldsWin(t *testing.T) {
	local := []models.UserIdentity{{ID: "u1", Name: "A"}}
	external := []models.UserIdentity{{ID: "u1", Name: "B", Avatar: strPtr("x")}}

	resolved := Resolve(local, external)

	assert.Len(t, resolved, 1)
	u := resolved["u1"]
	assert.Equal(t, "A", u.Name, "локальное имя имеет приоритет")
	assert.Equal(t, strPtr("x"), u.Avatar, "недостающее поле добирается у провайдера")
}

func TestResolve_ExternalFillsMissingLocalFields(t *testing.T) {
	local := []models.UserIdentity{{ID: "u1", Name: "Alice"}}
	external := []models.UserIdentity{{ID: "u1", Name: "alice-ext", Email: "alice@example.com"}}

	resolved := Resolve(local, external)

	u := resolved["u1"]
	assert.Equal(t, "Alice", u.Name)
	assert.Equal(t, "alice@example.com", u.Email)
}

func TestResolve_DisjointSources(t *testing.T) {
	local := []models.UserIdentity{{ID: "u1", Name: "Local"}}
	external := []models.UserIdentity{{ID: "u2", Name: "External"}}

	resolved := Resolve(local, external)

	assert.Len(t, resolved, 2)
	assert.Equal(t, "Local", resolved["u1"].Name)
	assert.Equal(t, "External", resolved["u2"].Name)
}

func TestResolve_OneSourceEmpty(t *testing.T) {
	external := []models.UserIdentity{{ID: "u1", Name: "Ext"}}

	assert.Len(t, Resolve(nil, external), 1)
	assert.Len(t, Resolve(external, nil), 1)
}

func TestResolve_SkipsRecordsWithoutID(t *testing.T) {
	local := []models.UserIdentity{{Name: "no-id"}}
	external := []models.UserIdentity{{Email: "orphan@example.com"}}

	resolved := Resolve(local, external)

	assert.Empty(t, resolved, "записи без ID пропускаются, а не попадают в мапу")
}
