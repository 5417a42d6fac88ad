package modelsync_test

import (
	"log/slog"
	"testing"

	"github.com/modelsync/modelsync"
	"github.com/modelsync/modelsync/internal/testenv"
	"github.com/modelsync/modelsync/pkg/logger"
	"github.com/modelsync/modelsync/pkg/models"
	"github.com/modelsync/modelsync/pkg/sources"
	"github.com/stretchr/testify/require"
)

var testNode = models.BaseModel.Extend("TestNode",
	models.Define("value", models.NumberPolicy, models.Int(0)),
	models.Define("child", models.InstancePolicy),
	models.Define("children", models.ArrayPolicy, models.Array()),
	models.Internal("scratch", models.AnyPolicy),
)

func testRegistry() *models.Registry {
	r := models.NewRegistry(models.BaseModel, testNode)
	sources.Register(r)
	return r
}

// newTestDocument returns a document using the test registry and a
// recording log handler.
func newTestDocument(t *testing.T, opts ...modelsync.Option) (*modelsync.Document, *testenv.LogHandler) {
	t.Helper()
	h := testenv.NewLogHandler(slog.LevelDebug)
	opts = append([]modelsync.Option{
		modelsync.WithRegistry(testRegistry()),
		modelsync.WithLogger(logger.New(h)),
	}, opts...)
	return modelsync.NewDocument(opts...), h
}

func node(t *testing.T, attrs ...models.Attr) *models.Model {
	t.Helper()
	m, err := models.New(testNode, attrs...)
	require.NoError(t, err)
	return m
}

// recordEvents collects every change event of d.
func recordEvents(d *modelsync.Document) *[]modelsync.ChangeEvent {
	var events []modelsync.ChangeEvent
	d.OnChange(func(ev modelsync.ChangeEvent) {
		events = append(events, ev)
	})
	return &events
}

// referenceMap indexes a snapshot's references by id so that two documents
// can be compared regardless of attachment order.
func referenceMap(s *modelsync.Snapshot) map[string]modelsync.ModelJSON {
	out := make(map[string]modelsync.ModelJSON, len(s.Roots.References))
	for _, r := range s.Roots.References {
		out[r.ID] = r
	}
	return out
}

func requireSameState(t *testing.T, want, got *modelsync.Document) {
	t.Helper()
	ws, gs := want.ToJSON(true), got.ToJSON(true)
	require.Equal(t, ws.Title, gs.Title)
	require.Equal(t, ws.Roots.RootIDs, gs.Roots.RootIDs)

	wm, gm := referenceMap(ws), referenceMap(gs)
	require.Len(t, gm, len(wm))
	for id, w := range wm {
		g, ok := gm[id]
		require.True(t, ok, "missing model %s", id)
		require.Equal(t, w.Type, g.Type)
		require.Len(t, g.Attributes, len(w.Attributes))
		for k, wv := range w.Attributes {
			require.True(t, models.Equal(wv, g.Attributes[k]), "%s.%s: %s != %s", id, k, wv, g.Attributes[k])
		}
	}
}
