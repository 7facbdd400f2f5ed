package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/alfredjeanlab/layoutsync/internal/client"
	"github.com/alfredjeanlab/layoutsync/internal/connectivity"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSchedulerStartStop(t *testing.T) {
	syncer := &mockSyncer{}
	auth := client.BearerAuth("tok")

	sched := NewScheduler(syncer, connectivity.NewStatic(true), auth,
		WithInterval(20*time.Millisecond),
		WithProbeInterval(0),
		WithLogger(quietLogger()),
	)
	sched.Start()
	waitFor(t, func() bool { return syncer.pushes.Load() >= 2 })
	sched.Stop()

	if syncer.pulls.Load() < 2 {
		t.Fatalf("expected a pull after every push, got %d", syncer.pulls.Load())
	}
	if got, _ := syncer.auth.Load().(http.Header); got.Get("Authorization") != "Bearer tok" {
		t.Errorf("auth not passed through: %v", got)
	}
}

func TestSchedulerStartTwiceRunsOneLoop(t *testing.T) {
	syncer := &mockSyncer{}
	sched := NewScheduler(syncer, nil, nil,
		WithInterval(0),
		WithProbeInterval(0),
		WithLogger(quietLogger()),
	)
	sched.Start()
	sched.Start()
	waitFor(t, func() bool { return syncer.pushes.Load() >= 1 })
	time.Sleep(20 * time.Millisecond)
	if got := syncer.pushes.Load(); got != 1 {
		t.Fatalf("expected one startup pass, got %d", got)
	}

	stopped := make(chan struct{})
	go func() {
		sched.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after a repeated Start")
	}

	// A stopped scheduler starts again.
	sched.Start()
	waitFor(t, func() bool { return syncer.pushes.Load() >= 2 })
	sched.Stop()
}

func TestSchedulerStop_NoStart(t *testing.T) {
	sched := NewScheduler(&mockSyncer{}, nil, nil, WithLogger(quietLogger()))
	// Stop without Start should not panic.
	sched.Stop()
}

func TestSchedulerSyncsOnReconnect(t *testing.T) {
	syncer := &mockSyncer{}
	net := connectivity.NewStatic(false)

	sched := NewScheduler(syncer, net, nil,
		WithInterval(0),
		WithProbeInterval(10*time.Millisecond),
		WithLogger(quietLogger()),
	)
	sched.Start()
	defer sched.Stop()

	waitFor(t, func() bool { return syncer.pushes.Load() == 1 })

	// Staying offline triggers nothing.
	time.Sleep(50 * time.Millisecond)
	if n := syncer.pushes.Load(); n != 1 {
		t.Fatalf("pushes while offline = %d, want 1", n)
	}

	net.Set(true)
	waitFor(t, func() bool { return syncer.pushes.Load() == 2 })

	// Staying online does not re-trigger.
	time.Sleep(50 * time.Millisecond)
	if n := syncer.pushes.Load(); n != 2 {
		t.Fatalf("pushes while online = %d, want 2", n)
	}
}

func TestSchedulerSurvivesErrors(t *testing.T) {
	syncer := &mockSyncer{}
	syncer.fail.Store(true)

	sched := NewScheduler(syncer, connectivity.NewStatic(true), nil,
		WithInterval(10*time.Millisecond),
		WithProbeInterval(0),
		WithLogger(quietLogger()),
	)
	sched.Start()
	waitFor(t, func() bool { return syncer.pushes.Load() >= 3 })
	sched.Stop()
}

func TestSchedulerBacksUpAfterPass(t *testing.T) {
	ms := newMockStore()
	ms.put("layout_grid", `{"layout_type":"grid"}`)
	dest1 := &mockDestination{name: "one"}
	dest2 := &mockDestination{name: "two"}

	sched := NewScheduler(&mockSyncer{}, connectivity.NewStatic(true), nil,
		WithInterval(time.Hour),
		WithProbeInterval(0),
		WithLogger(quietLogger()),
		WithBackup(ms, dest1, dest2),
	)
	sched.Start()
	waitFor(t, func() bool { return dest1.writes.Load() >= 1 && dest2.writes.Load() >= 1 })
	sched.Stop()

	data, ok := dest1.last.Load().([]byte)
	if !ok {
		t.Fatal("expected data")
	}
	if lines := nonEmptyLines(string(data)); len(lines) != 2 {
		t.Fatalf("expected header + 1 record, got %d lines", len(lines))
	}
}

func TestRunOnce(t *testing.T) {
	syncer := &mockSyncer{}
	sched := NewScheduler(syncer, nil, nil, WithLogger(quietLogger()))
	sched.RunOnce(context.Background())
	if syncer.pushes.Load() != 1 || syncer.pulls.Load() != 1 {
		t.Fatalf("pushes=%d pulls=%d", syncer.pushes.Load(), syncer.pulls.Load())
	}
}

func TestBackupTriesEveryDestination(t *testing.T) {
	ms := newMockStore()
	boom := errors.New("bucket missing")
	bad := &mockDestination{name: "bad", err: boom}
	good := &mockDestination{name: "good"}

	err := Backup(context.Background(), ms, []Destination{bad, good}, quietLogger())
	if !errors.Is(err, boom) {
		t.Fatalf("expected first destination error, got %v", err)
	}
	if good.writes.Load() != 1 {
		t.Fatal("later destination skipped after failure")
	}
}

func TestBackupExportFailure(t *testing.T) {
	ms := newMockStore()
	ms.err = errors.New("storage read failed")
	dest := &mockDestination{name: "d"}

	if err := Backup(context.Background(), ms, []Destination{dest}, quietLogger()); err == nil {
		t.Fatal("expected export error")
	}
	if dest.writes.Load() != 0 {
		t.Fatal("destination written despite export failure")
	}
}
