package jsonfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pickbatch/internal/model"
	"pickbatch/internal/warehouse"
)

var catalog = warehouse.NewCatalog(map[string]model.Position{
	"165":  {X: 1, Y: 2},
	"228":  {X: 2, Y: 8, Z: 1},
	"bolt": {X: 7, Y: 3},
})

func TestLoad(t *testing.T) {
	in := `[
		{"order_id": "A1", "items": [{"item_id": 165}, {"item_id": "228"}]},
		{"items": [{"item_id": "bolt"}]}
	]`
	s, err := Load(strings.NewReader(in), catalog)
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())

	stamp := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return stamp }

	require.True(t, s.Available())
	o, ok := s.Next()
	require.True(t, ok)
	require.Equal(t, "A1", o.ID)
	require.Equal(t, stamp, o.ArrivedAt)
	require.Len(t, o.Items, 2)
	require.Equal(t, "165", o.Items[0].ID)
	require.Equal(t, model.Position{X: 1, Y: 2}, *o.Items[0].Pos)

	o, ok = s.Next()
	require.True(t, ok)
	require.NotEmpty(t, o.ID, "missing ids are generated")

	require.False(t, s.Available())
	_, ok = s.Next()
	require.False(t, ok)
}

func TestLoadRejects(t *testing.T) {
	for name, in := range map[string]string{
		"unknown item": `[{"order_id": "A", "items": [{"item_id": "nope"}]}]`,
		"no items":     `[{"order_id": "A", "items": []}]`,
		"bad id":       `[{"order_id": "A", "items": [{"item_id": true}]}]`,
		"not json":     `{`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(in), catalog)
			require.Error(t, err)
		})
	}
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"order_id":"x","items":[{"item_id":"bolt"}]}]`), 0o600))
	s, err := Open(path, catalog)
	require.NoError(t, err)
	require.Equal(t, "jsonfile:"+path, s.Name())
	require.Equal(t, 1, s.Len())
}
