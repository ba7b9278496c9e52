package tasks

import (
	"testing"

	"github.com/fruitsalade/mixtape/internal/protocol"
)

func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker()
	steps := []struct {
		event      protocol.Event
		wantStatus Status
		wantDone   int
	}{
		{protocol.Start{ID: "b", FilesTotal: 2, DirectoriesTotal: 1}, StatusPending, 0},
		{protocol.DirectoriesProgress{ID: "b", DirectoriesDone: 1}, StatusInProgress, 0},
		{protocol.FilesProgress{ID: "b", FilesDone: 1}, StatusInProgress, 1},
		{protocol.FilesProgress{ID: "b", FilesDone: 7}, StatusInProgress, 2},
		{protocol.Done{ID: "b"}, StatusSuccess, 2},
	}
	for i, s := range steps {
		tr.Apply(s.event)
		task, ok := tr.Get("b")
		if !ok {
			t.Fatalf("step %d: task missing", i)
		}
		if task.Status != s.wantStatus || task.PartsDone != s.wantDone {
			t.Errorf("step %d: status=%s done=%d, want %s %d", i, task.Status, task.PartsDone, s.wantStatus, s.wantDone)
		}
	}
	if task, _ := tr.Get("b"); task.PartsCount != 2 || task.Percent() != 100 || task.Display != DefaultDisplay {
		t.Errorf("final task = %+v", task)
	}
}

func TestTrackerFailed(t *testing.T) {
	tr := NewTracker()
	tr.Apply(protocol.Start{ID: "b", FilesTotal: 4})
	tr.Apply(protocol.FilesProgress{ID: "b", FilesDone: 1})
	tr.Apply(protocol.Failed{ID: "b", Error: "boom"})

	task, _ := tr.Get("b")
	if task.Status != StatusFailed || task.Error != "boom" || task.PartsDone != 1 || task.Percent() != 25 {
		t.Errorf("task = %+v", task)
	}
}

func TestTrackerUnknownAndOrder(t *testing.T) {
	tr := NewTracker()
	tr.Apply(protocol.Done{ID: "ghost"})
	if len(tr.List()) != 0 {
		t.Fatal("event for unknown batch created a task")
	}

	for _, id := range []string{"a", "b", "c"} {
		tr.Apply(protocol.Start{ID: id})
	}
	tr.Remove("b")
	tr.Remove("missing")

	list := tr.List()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "c" {
		t.Errorf("List = %+v", list)
	}
	if list[0].Percent() != 0 {
		t.Errorf("empty task percent = %d", list[0].Percent())
	}
}
