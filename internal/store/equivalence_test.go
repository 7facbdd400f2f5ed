package store_test

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredjeanlab/layoutsync/internal/store"
	"github.com/alfredjeanlab/layoutsync/internal/store/flatstore"
	"github.com/alfredjeanlab/layoutsync/internal/store/sqlstore"
	"github.com/alfredjeanlab/layoutsync/internal/store/storetest"
)

func openers(dir string) (store.Opener, store.Opener) {
	primary := func(ctx context.Context) (store.Backend, error) {
		return sqlstore.Open(ctx, "sqlite://"+filepath.Join(dir, "layouts.db"))
	}
	fallback := func(context.Context) (store.Backend, error) {
		return flatstore.Open(filepath.Join(dir, "offline.json"))
	}
	return primary, fallback
}

// openPair returns a structured and a flat Local over fresh directories.
func openPair(t *testing.T) (*store.Local, *store.Local) {
	t.Helper()
	ctx := context.Background()

	primary, fallback := openers(t.TempDir())
	structured := store.NewLocal(primary, fallback, nil)
	require.NoError(t, structured.Initialize(ctx))
	t.Cleanup(func() { structured.Dispose() })
	require.Equal(t, store.KindStructured, structured.Backend())

	_, fallback = openers(t.TempDir())
	flat := store.NewLocal(nil, fallback, nil)
	require.NoError(t, flat.Initialize(ctx))
	t.Cleanup(func() { flat.Dispose() })
	require.Equal(t, store.KindFlat, flat.Backend())

	return structured, flat
}

func assertSameOutcomes(t *testing.T, steps []storetest.Step) {
	t.Helper()
	structured, flat := openPair(t)
	got := storetest.Replay(t, structured, steps)
	want := storetest.Replay(t, flat, steps)
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("backends diverge (-structured +flat):\n%s", diff)
	}
	for _, o := range got {
		for _, r := range o.Records {
			assert.True(t, r.Stamped, "%s %s: updated_at not stamped as UTC milliseconds", o.Step.Op, r.Key)
		}
	}
}

func TestBackendsAreEquivalent(t *testing.T) {
	for name, steps := range storetest.Sequences {
		t.Run(name, func(t *testing.T) {
			assertSameOutcomes(t, steps)
		})
	}
}

func TestBackendsAreEquivalentOnRandomSequences(t *testing.T) {
	for seed := uint64(1); seed <= 8; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			assertSameOutcomes(t, storetest.RandomSteps(seed, 60))
		})
	}
}

func TestFlatValuesKeepTheirBytes(t *testing.T) {
	ctx := context.Background()
	structured, flat := openPair(t)
	const v = `{"a": 1, "b": "<x>"}`
	for _, l := range []*store.Local{structured, flat} {
		require.NoError(t, l.Set(ctx, "k", json.RawMessage(v)))
		rec, err := l.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, v, string(rec.Value), "backend %s", l.Backend())
	}
	for _, v := range []string{"not json", ""} {
		for _, l := range []*store.Local{structured, flat} {
			require.NoError(t, l.Set(ctx, "k", json.RawMessage(v)), "backend %s set %q", l.Backend(), v)
			rec, err := l.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, v, string(rec.Value), "backend %s", l.Backend())
		}
	}
}

func TestLocalContract(t *testing.T) {
	for _, disableDB := range []bool{false, true} {
		name := "structured"
		if disableDB {
			name = "flat"
		}
		t.Run(name, func(t *testing.T) {
			storetest.Run(t, func(t *testing.T) store.Backend {
				primary, fallback := openers(t.TempDir())
				if disableDB {
					primary = nil
				}
				l := store.NewLocal(primary, fallback, nil)
				require.NoError(t, l.Initialize(context.Background()))
				t.Cleanup(func() { l.Dispose() })
				return l
			})
		})
	}
}

func TestStructuredFailureFallsBackToFlat(t *testing.T) {
	dir := t.TempDir()
	_, fallback := openers(dir)
	broken := func(ctx context.Context) (store.Backend, error) {
		// A DSN under a regular file cannot be created.
		return sqlstore.Open(ctx, "sqlite://"+filepath.Join(dir, "offline.json", "layouts.db"))
	}
	ctx := context.Background()

	// The flat file must exist for the broken DSN to collide with it.
	f, err := flatstore.Open(filepath.Join(dir, "offline.json"))
	require.NoError(t, err)
	require.NoError(t, f.Set(ctx, "seed", json.RawMessage(`{}`)))

	l := store.NewLocal(broken, fallback, nil)
	require.NoError(t, l.Initialize(ctx))
	defer l.Dispose()
	assert.Equal(t, store.KindFlat, l.Backend())

	rec, err := l.Get(ctx, "seed")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(rec.Value))
}

func TestListUpdatedSinceMatchesAcrossBackends(t *testing.T) {
	ctx := context.Background()
	for _, disableDB := range []bool{false, true} {
		primary, fallback := openers(t.TempDir())
		if disableDB {
			primary = nil
		}
		l := store.NewLocal(primary, fallback, nil)
		require.NoError(t, l.Initialize(ctx))

		require.NoError(t, l.Set(ctx, "old", json.RawMessage(`{}`)))
		time.Sleep(5 * time.Millisecond)
		cut := time.Now()
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, l.Set(ctx, "new", json.RawMessage(`{}`)))

		recs, err := l.ListUpdatedSince(ctx, cut)
		require.NoError(t, err)
		require.Len(t, recs, 1, "backend %s", l.Backend())
		assert.Equal(t, "new", recs[0].Key)
		require.NoError(t, l.Dispose())
	}
}
