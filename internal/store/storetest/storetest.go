// Package storetest holds a behavioral suite every store.Backend must pass.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredjeanlab/layoutsync/internal/model"
	"github.com/alfredjeanlab/layoutsync/internal/store"
)

// Opener returns a fresh, empty backend for one subtest.
type Opener func(t *testing.T) store.Backend

// Run exercises the observable contract of store.Backend.
func Run(t *testing.T, open Opener) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		b := open(t)
		_, err := b.Get(ctx, "layout_none")
		assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
	})

	t.Run("SetGet", func(t *testing.T) {
		b := open(t)
		before := time.Now().Add(-time.Second)
		require.NoError(t, b.Set(ctx, "layout_grid", json.RawMessage(`{"cols":3}`)))

		rec, err := b.Get(ctx, "layout_grid")
		require.NoError(t, err)
		assert.Equal(t, "layout_grid", rec.Key)
		assert.JSONEq(t, `{"cols":3}`, string(rec.Value))
		assert.True(t, rec.UpdatedAt.After(before), "updated_at %v not stamped", rec.UpdatedAt)
	})

	t.Run("SetOverwrites", func(t *testing.T) {
		b := open(t)
		require.NoError(t, b.Set(ctx, "k", json.RawMessage(`{"v":1}`)))
		require.NoError(t, b.Set(ctx, "k", json.RawMessage(`{"v":2}`)))

		rec, err := b.Get(ctx, "k")
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":2}`, string(rec.Value))

		all, err := b.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("RemoveIsIdempotent", func(t *testing.T) {
		b := open(t)
		require.NoError(t, b.Set(ctx, "k", json.RawMessage(`{}`)))
		require.NoError(t, b.Remove(ctx, "k"))
		require.NoError(t, b.Remove(ctx, "k"))

		_, err := b.Get(ctx, "k")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("ListAndClear", func(t *testing.T) {
		b := open(t)
		for _, k := range []string{"layout_b", "layout_a", "layout_c"} {
			require.NoError(t, b.Set(ctx, k, json.RawMessage(`{"k":"`+k+`"}`)))
		}

		all, err := b.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"layout_a", "layout_b", "layout_c"}, keys(all))

		require.NoError(t, b.Clear(ctx))
		all, err = b.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("ValuesAreOpaque", func(t *testing.T) {
		b := open(t)
		for _, v := range Values {
			require.NoError(t, b.Set(ctx, "layout_v", json.RawMessage(v)), "set %q", v)
			rec, err := b.Get(ctx, "layout_v")
			require.NoError(t, err)
			assert.Equal(t, v, string(rec.Value), "value must come back byte for byte")
		}
	})

	t.Run("ValuesRoundTrip", func(t *testing.T) {
		b := open(t)
		v := json.RawMessage(`{"layout_type":"grid","layout_config":{"cols":[1,2,3],"name":"ünïcode"},"synced":false}`)
		require.NoError(t, b.Set(ctx, "layout_grid", v))

		rec, err := b.Get(ctx, "layout_grid")
		require.NoError(t, err)
		assert.JSONEq(t, string(v), string(rec.Value))
	})
}

// Op names a Backend call in a replayed sequence.
type Op string

const (
	OpSet    Op = "set"
	OpGet    Op = "get"
	OpRemove Op = "remove"
	OpList   Op = "list"
	OpClear  Op = "clear"
)

// Step is one call. Key and Value are ignored by ops that do not take them.
type Step struct {
	Op    Op
	Key   string
	Value string
}

// Outcome is what a caller can observe from one Step. Timestamps are reduced
// to whether they are stamped the way every backend must stamp them: set,
// UTC, millisecond precision.
type Outcome struct {
	Step    Step
	Err     string
	Records []Observed
}

// Observed is one record as returned by Get or List.
type Observed struct {
	Key     string
	Value   string
	Stamped bool
}

// Values covers the shapes a backend could be tempted to rewrite or reject.
var Values = []string{
	`{"n":1}`,
	`{"a": 1,  "b": [1, 2]}`,
	"{\n  \"nested\": {\"deep\": true}\n}",
	`{"html":"<b>x</b> & y"}`,
	`{"name":"ünïcode ✓"}`,
	`"just a string"`,
	`not json`,
	``,
	`[1,2,3]`,
}

// Sequences are hand-written call sequences worth comparing across backends.
var Sequences = map[string][]Step{
	"overwrite and remove": {
		{Op: OpSet, Key: "layout_a", Value: `{"n":1}`},
		{Op: OpSet, Key: "layout_b", Value: `{"n":2}`},
		{Op: OpSet, Key: "layout_a", Value: `{"n": 3}`},
		{Op: OpRemove, Key: "layout_b"},
		{Op: OpRemove, Key: "layout_missing"},
		{Op: OpGet, Key: "layout_b"},
		{Op: OpGet, Key: "layout_a"},
		{Op: OpList},
	},
	"clear mid sequence": {
		{Op: OpSet, Key: "layout_a", Value: `{"html":"<x>"}`},
		{Op: OpSet, Key: "layout_b", Value: `not json`},
		{Op: OpList},
		{Op: OpClear},
		{Op: OpGet, Key: "layout_a"},
		{Op: OpList},
		{Op: OpSet, Key: "layout_b", Value: ``},
		{Op: OpGet, Key: "layout_b"},
		{Op: OpClear},
		{Op: OpClear},
		{Op: OpList},
	},
	"value shapes": valueShapes(),
}

func valueShapes() []Step {
	var steps []Step
	for _, v := range Values {
		steps = append(steps, Step{Op: OpSet, Key: "layout_v", Value: v}, Step{Op: OpGet, Key: "layout_v"})
	}
	return append(steps, Step{Op: OpList})
}

// RandomSteps returns n steps drawn from a fixed seed over a small key space
// so sets, removes and clears collide.
func RandomSteps(seed uint64, n int) []Step {
	r := rand.New(rand.NewPCG(seed, seed))
	ks := []string{"layout_a", "layout_b", "layout_c", "layout_d"}
	ops := []Op{OpSet, OpSet, OpSet, OpGet, OpGet, OpRemove, OpList, OpClear}
	steps := make([]Step, n)
	for i := range steps {
		steps[i] = Step{
			Op:    ops[r.IntN(len(ops))],
			Key:   ks[r.IntN(len(ks))],
			Value: Values[r.IntN(len(Values))],
		}
	}
	return steps
}

// Replay runs steps against b and returns one Outcome per step. Backend
// errors are recorded, not fatal, so two backends can be compared even when
// one of them fails.
func Replay(t *testing.T, b store.Backend, steps []Step) []Outcome {
	t.Helper()
	ctx := context.Background()

	out := make([]Outcome, 0, len(steps))
	for _, st := range steps {
		o := Outcome{Step: st}
		var err error
		switch st.Op {
		case OpSet:
			err = b.Set(ctx, st.Key, json.RawMessage(st.Value))
		case OpGet:
			var rec *model.Record
			rec, err = b.Get(ctx, st.Key)
			if err == nil {
				o.Records = []Observed{observe(rec)}
			}
		case OpRemove:
			err = b.Remove(ctx, st.Key)
		case OpList:
			var recs []*model.Record
			recs, err = b.List(ctx)
			for _, r := range recs {
				o.Records = append(o.Records, observe(r))
			}
		case OpClear:
			err = b.Clear(ctx)
		default:
			t.Fatalf("unknown op %q", st.Op)
		}
		o.Err = errorClass(err)
		out = append(out, o)
	}
	return out
}

func observe(r *model.Record) Observed {
	ts := r.UpdatedAt
	return Observed{
		Key:     r.Key,
		Value:   string(r.Value),
		Stamped: !ts.IsZero() && ts.Location() == time.UTC && ts.Equal(ts.Truncate(time.Millisecond)),
	}
}

func errorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, store.ErrNotFound):
		return "not found"
	case errors.Is(err, store.ErrStorageWrite):
		return "write"
	case errors.Is(err, store.ErrStorageRead):
		return "read"
	default:
		return "other"
	}
}

func keys(recs []*model.Record) []string {
	ks := make([]string, 0, len(recs))
	for _, r := range recs {
		ks = append(ks, r.Key)
	}
	sort.Strings(ks)
	return ks
}
