package modelsync_test

import (
	"errors"
	"testing"

	"github.com/modelsync/modelsync"
	"github.com/modelsync/modelsync/pkg/constants"
	"github.com/modelsync/modelsync/pkg/metrics"
	"github.com/modelsync/modelsync/pkg/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDocumentDefaults(t *testing.T) {
	d := modelsync.NewDocument()
	assert.Equal(t, constants.DefaultTitle, d.Title())
	assert.Empty(t, d.Roots())
	assert.Empty(t, d.AllModels())

	d = modelsync.NewDocument(modelsync.WithTitle("custom"))
	assert.Equal(t, "custom", d.Title())
}

func TestAddRootAttachesClosure(t *testing.T) {
	d, _ := newTestDocument(t)
	c := node(t)
	b := node(t, models.A("child", models.Instance(c)))
	a := node(t, models.A("child", models.Instance(b)))

	require.NoError(t, d.AddRoot(a))
	assert.Len(t, d.AllModels(), 3)
	for _, m := range []*models.Model{a, b, c} {
		assert.Equal(t, models.Owner(d), m.Document())
		assert.Equal(t, m, d.GetModelByID(m.ID()))
	}

	// adding twice is a no-op
	require.NoError(t, d.AddRoot(a))
	assert.Len(t, d.Roots(), 1)
}

func TestChainDetach(t *testing.T) {
	d, _ := newTestDocument(t)
	c := node(t)
	b := node(t, models.A("child", models.Instance(c)))
	a := node(t, models.A("child", models.Instance(b)))
	require.NoError(t, d.AddRoot(a))

	require.NoError(t, a.Set("child", models.Null))
	assert.Equal(t, []*models.Model{a}, d.AllModels())
	assert.Nil(t, b.Document())
	assert.Nil(t, c.Document())
	assert.Nil(t, d.GetModelByID(c.ID()))

	require.NoError(t, a.Set("child", models.Instance(b)))
	assert.Len(t, d.AllModels(), 3)
}

func TestRemoveRoot(t *testing.T) {
	d, _ := newTestDocument(t)
	shared := node(t)
	r1 := node(t, models.A("child", models.Instance(shared)))
	r2 := node(t, models.A("children", models.Array(models.Instance(shared))))
	require.NoError(t, d.AddRoot(r1))
	require.NoError(t, d.AddRoot(r2))
	events := recordEvents(d)

	require.NoError(t, d.RemoveRoot(r1))
	assert.Nil(t, r1.Document())
	assert.Equal(t, models.Owner(d), shared.Document())
	require.Len(t, *events, 1)
	assert.Equal(t, constants.KindRootRemoved, (*events)[0].Kind())

	require.NoError(t, d.RemoveRoot(r1))
	assert.Len(t, *events, 1)

	require.NoError(t, d.Clear())
	assert.Empty(t, d.AllModels())
	assert.Nil(t, shared.Document())
}

func TestFreezeRecomputesOnce(t *testing.T) {
	var stats []modelsync.RecomputeStats
	d, _ := newTestDocument(t, modelsync.WithRecomputeHook(func(s modelsync.RecomputeStats) {
		stats = append(stats, s)
	}))

	err := d.Batch(func() error {
		for i := 0; i < 3; i++ {
			if err := d.AddRoot(node(t)); err != nil {
				return err
			}
		}
		assert.Empty(t, d.AllModels())
		return nil
	})
	require.NoError(t, err)

	require.Len(t, stats, 1)
	assert.Equal(t, modelsync.RecomputeStats{Attached: 3, Reachable: 3}, stats[0])
	assert.Len(t, d.AllModels(), 3)
}

func TestNestedFreeze(t *testing.T) {
	recomputes := 0
	d, _ := newTestDocument(t, modelsync.WithRecomputeHook(func(modelsync.RecomputeStats) { recomputes++ }))

	d.Freeze()
	d.Freeze()
	require.NoError(t, d.AddRoot(node(t)))
	require.NoError(t, d.Unfreeze())
	assert.Zero(t, recomputes)
	require.NoError(t, d.Unfreeze())
	assert.Equal(t, 1, recomputes)

	assert.Error(t, d.Unfreeze())
}

func TestBatchUnfreezesOnError(t *testing.T) {
	recomputes := 0
	d, _ := newTestDocument(t, modelsync.WithRecomputeHook(func(modelsync.RecomputeStats) { recomputes++ }))

	boom := errors.New("boom")
	err := d.Batch(func() error {
		if err := d.AddRoot(node(t)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, recomputes)
	assert.Len(t, d.AllModels(), 1)

	assert.Panics(t, func() {
		_ = d.Batch(func() error { panic("inner") })
	})
	require.NoError(t, d.AddRoot(node(t)))
	assert.Len(t, d.AllModels(), 2)
}

func TestNestedHandlerSingleAggregateChange(t *testing.T) {
	d, _ := newTestDocument(t)
	m := node(t)
	require.NoError(t, d.AddRoot(m))

	value, err := m.Property("value")
	require.NoError(t, err)
	value.Change.Connect(func(c models.PropertyChange) {
		n, _ := c.New.AsNumber()
		require.NoError(t, m.Set("children", models.Array(models.Number(n))))
	})
	aggregate := 0
	m.Change.Connect(func(*models.Model) { aggregate++ })
	events := recordEvents(d)

	require.NoError(t, m.Set("value", models.Int(5)))
	assert.Equal(t, 1, aggregate)

	var attrs []string
	for _, ev := range *events {
		attrs = append(attrs, ev.(*modelsync.ModelChangedEvent).Attr)
	}
	assert.ElementsMatch(t, []string{"value", "children"}, attrs)
}

func TestModelChangedEvent(t *testing.T) {
	d, _ := newTestDocument(t)
	m := node(t)
	require.NoError(t, d.AddRoot(m))
	events := recordEvents(d)

	require.NoError(t, m.Set("value", models.Int(2)))
	require.NoError(t, m.Set("scratch", models.String("local")))

	require.Len(t, *events, 1)
	ev := (*events)[0].(*modelsync.ModelChangedEvent)
	assert.Equal(t, d, ev.Document())
	assert.Equal(t, m, ev.Model)
	assert.Equal(t, "value", ev.Attr)
	assert.True(t, models.Equal(models.Int(0), ev.Old))
	assert.True(t, models.Equal(models.Int(2), ev.New))
	assert.Empty(t, ev.SetterID())
}

func TestOnChangeRemove(t *testing.T) {
	d, _ := newTestDocument(t)
	calls := 0
	h := d.OnChange(func(modelsync.ChangeEvent) { calls++ })

	d.SetTitle("one")
	d.RemoveOnChange(h)
	d.SetTitle("two")
	assert.Equal(t, 1, calls)

	// same title does not fire
	calls = 0
	d.OnChange(func(modelsync.ChangeEvent) { calls++ })
	d.SetTitle("two")
	assert.Zero(t, calls)
}

func TestGetModelByName(t *testing.T) {
	d, _ := newTestDocument(t)
	a := node(t, models.A(constants.NameAttr, models.String("a")))
	b := node(t, models.A(constants.NameAttr, models.String("b")))
	require.NoError(t, d.AddRoot(a))
	require.NoError(t, d.AddRoot(b))

	found, err := d.GetModelByName("missing")
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = d.GetModelByName("a")
	require.NoError(t, err)
	assert.Equal(t, a, found)

	require.NoError(t, b.Set(constants.NameAttr, models.String("a")))
	_, err = d.GetModelByName("a")
	assert.ErrorIs(t, err, constants.ErrAmbiguousName)
	found, err = d.GetModelByName("b")
	require.NoError(t, err)
	assert.Nil(t, found)

	require.NoError(t, d.RemoveRoot(b))
	found, err = d.GetModelByName("a")
	require.NoError(t, err)
	assert.Equal(t, a, found)
}

func TestOwnershipViolation(t *testing.T) {
	d1, _ := newTestDocument(t)
	d2, _ := newTestDocument(t)
	shared := node(t)
	require.NoError(t, d1.AddRoot(node(t, models.A("child", models.Instance(shared)))))

	other := node(t, models.A("child", models.Instance(shared)))
	err := d2.AddRoot(other)
	assert.ErrorIs(t, err, constants.ErrOwnershipViolation)
	assert.Empty(t, d2.Roots())
	assert.Empty(t, d2.AllModels())
	assert.Nil(t, other.Document())
	assert.Equal(t, models.Owner(d1), shared.Document())
}

func TestSetOwnedModelRejectedBeforeWrite(t *testing.T) {
	d1, _ := newTestDocument(t)
	d2, _ := newTestDocument(t)
	owned := node(t)
	require.NoError(t, d2.AddRoot(owned))
	r := node(t)
	require.NoError(t, d1.AddRoot(r))
	events := recordEvents(d1)
	changes := 0
	r.Change.Connect(func(*models.Model) { changes++ })

	err := r.Set("child", models.Instance(owned))
	assert.ErrorIs(t, err, constants.ErrOwnershipViolation)

	child, err := r.Getv("child")
	require.NoError(t, err)
	assert.True(t, child.IsNull(), "%s", child)
	assert.False(t, r.IsSetExplicitly("child"))
	assert.Equal(t, []*models.Model{r}, d1.AllModels())
	assert.Empty(t, *events)
	assert.Zero(t, changes)
	assert.Equal(t, models.Owner(d2), owned.Document())
}

func TestDestructivelyMove(t *testing.T) {
	src, _ := newTestDocument(t, modelsync.WithTitle("source"))
	dst, _ := newTestDocument(t)
	root := node(t, models.A("child", models.Instance(node(t))))
	require.NoError(t, src.AddRoot(root))
	require.NoError(t, dst.AddRoot(node(t)))

	require.NoError(t, src.DestructivelyMove(dst))
	assert.Empty(t, src.Roots())
	assert.Empty(t, src.AllModels())
	assert.Equal(t, []*models.Model{root}, dst.Roots())
	assert.Len(t, dst.AllModels(), 2)
	assert.Equal(t, "source", dst.Title())
	assert.Equal(t, models.Owner(dst), root.Document())

	assert.ErrorIs(t, dst.DestructivelyMove(dst), constants.ErrSelfMove)
}

func TestDocumentMetrics(t *testing.T) {
	c := metrics.NewCollector("test")
	d, _ := newTestDocument(t, modelsync.WithMetrics(c))
	m := node(t)
	require.NoError(t, d.AddRoot(m))
	require.NoError(t, m.Set("value", models.Int(1)))

	assert.InDelta(t, 1, testutil.ToFloat64(c.Recomputes), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.ReachableModels), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.ChangeEvents.WithLabelValues(constants.KindRootAdded)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.ChangeEvents.WithLabelValues(constants.KindModelChanged)), 0)
}
