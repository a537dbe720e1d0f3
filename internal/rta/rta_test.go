package rta

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/joshharrison/schedcheck/internal/analysis"
	"github.com/joshharrison/schedcheck/internal/taskfile"
	"github.com/joshharrison/schedcheck/internal/taskset"
)

func buildSet(t *testing.T, tasks ...taskset.Task) *taskset.TaskSet {
	t.Helper()
	ts, err := taskset.New("test", "ms", tasks)
	if err != nil {
		t.Fatalf("build task set: %v", err)
	}
	return ts
}

func task(name string, period, wcet int64, prio int) taskset.Task {
	return taskset.Task{Name: name, Period: period, WCET: wcet, Deadline: period, Priority: prio}
}

func TestAnalyze_ThreeTaskRateMonotonic(t *testing.T) {
	ts := buildSet(t,
		task("A", 10, 2, 0),
		task("B", 20, 5, 1),
		task("C", 50, 10, 2),
	)
	result, err := Analyze(ts, Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Schedulable {
		t.Error("expected task set to be schedulable")
	}

	assertResponse(t, result.Tasks[0], "A", 2, true)
	assertResponse(t, result.Tasks[1], "B", 7, true)
	// 10 + ceil(19/10)*2 + ceil(19/20)*5 = 19
	assertResponse(t, result.Tasks[2], "C", 19, true)

	if result.Tasks[2].Slack != 31 {
		t.Errorf("expected C slack 31, got %d", result.Tasks[2].Slack)
	}
}

func TestAnalyze_ResponseEqualsDeadline(t *testing.T) {
	ts := buildSet(t,
		task("X", 5, 3, 0),
		task("Y", 10, 4, 1),
	)
	result, err := Analyze(ts, Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertResponse(t, result.Tasks[0], "X", 3, true)
	assertResponse(t, result.Tasks[1], "Y", 10, true)
	if result.Tasks[1].Iterations != 3 {
		t.Errorf("expected Y to converge in 3 iterations (7, 10, 10), got %d", result.Tasks[1].Iterations)
	}
	if !result.Schedulable {
		t.Error("expected R == D to pass")
	}
}

func TestAnalyze_EarlyExitOnDeadlineMiss(t *testing.T) {
	ts := buildSet(t,
		task("X", 5, 3, 0),
		task("Y", 10, 5, 1),
	)
	result, err := Analyze(ts, Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Schedulable {
		t.Fatal("expected task set to be unschedulable")
	}
	y := result.Tasks[1]
	if y.Schedulable {
		t.Error("expected Y to miss its deadline")
	}
	// 5 + ceil(5/5)*3 = 8, then 5 + ceil(8/5)*3 = 11 > 10
	if y.ResponseTime != 11 {
		t.Errorf("expected first iterate past the deadline (11), got %d", y.ResponseTime)
	}
	if y.Slack != -1 {
		t.Errorf("expected slack -1, got %d", y.Slack)
	}
	if y.Iterations != 2 {
		t.Errorf("expected 2 iterations, got %d", y.Iterations)
	}
}

func TestAnalyze_Blocking(t *testing.T) {
	low := task("low", 20, 4, 1)
	high := task("high", 10, 2, 0)
	high.Blocking = 3
	ts := buildSet(t, high, low)

	result, err := Analyze(ts, Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertResponse(t, result.Tasks[0], "high", 5, true)
	assertResponse(t, result.Tasks[1], "low", 6, true)
}

func TestAnalyze_BlockingCausesMiss(t *testing.T) {
	high := task("high", 10, 4, 0)
	high.Deadline = 6
	high.Blocking = 3
	ts := buildSet(t, high, task("low", 20, 4, 1))

	result, err := Analyze(ts, Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Tasks[0].Schedulable {
		t.Error("expected blocking to push high past its deadline")
	}
}

func TestResponseTime_ArbitraryDeadlineLaterJobDominates(t *testing.T) {
	hp := []taskset.Task{task("t1", 70, 26, 0)}
	t2 := taskset.Task{Name: "t2", Period: 100, WCET: 62, Deadline: 200, Priority: 1}

	resp, err := ResponseTime(t2, hp, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Schedulable {
		t.Fatal("expected t2 to be schedulable")
	}
	// Job responses over the busy period: 114, 102, 116, 104, 118, 106, 94.
	if resp.ResponseTime != 118 {
		t.Errorf("expected worst response 118, got %d", resp.ResponseTime)
	}
	if resp.Jobs != 7 {
		t.Errorf("expected 7 jobs in the busy period, got %d", resp.Jobs)
	}
}

func TestResponseTime_ArbitraryDeadlineSecondJob(t *testing.T) {
	hp := []taskset.Task{task("t1", 100, 52, 0)}
	t2 := taskset.Task{Name: "t2", Period: 140, WCET: 52, Deadline: 200, Priority: 1}

	resp, err := ResponseTime(t2, hp, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ResponseTime != 156 || resp.Jobs != 2 || !resp.Schedulable {
		t.Errorf("expected R=156 over 2 jobs, got %+v", resp)
	}
}

func TestResponseTime_IterationCap(t *testing.T) {
	ts := buildSet(t,
		task("A", 10, 2, 0),
		task("B", 20, 5, 1),
		task("C", 50, 10, 2),
	)
	_, err := Analyze(ts, Config{MaxIterations: 1})
	if !errors.Is(err, ErrNoConvergence) {
		t.Fatalf("expected ErrNoConvergence, got %v", err)
	}
}

func TestResponseTime_LargePeriodsDoNotWrap(t *testing.T) {
	const half = int64(1) << 62
	hp := []taskset.Task{{Name: "a", Period: math.MaxInt64, WCET: half, Deadline: math.MaxInt64, Priority: 0}}
	b := taskset.Task{Name: "b", Period: math.MaxInt64, WCET: half, Deadline: math.MaxInt64, Priority: 1}

	// The true response is 2^63, one past the deadline.
	resp, err := ResponseTime(b, hp, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Schedulable || resp.ResponseTime < resp.Deadline {
		t.Errorf("expected a miss without wrapping, got %+v", resp)
	}
	if resp.ResponseTime < 0 {
		t.Errorf("response time wrapped negative: %d", resp.ResponseTime)
	}
}

func TestCeilDiv(t *testing.T) {
	cases := []struct{ a, b, want int64 }{
		{0, 5, 0},
		{1, 5, 1},
		{5, 5, 1},
		{6, 5, 2},
		{math.MaxInt64, math.MaxInt64, 1},
		{math.MaxInt64, 2, 1 << 62},
	}
	for _, c := range cases {
		if got := ceilDiv(c.a, c.b); got != c.want {
			t.Errorf("ceilDiv(%d, %d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestResponseTime_MonotonicInHigherPriorityWCET(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 200; iter++ {
		n := 2 + rng.Intn(4)
		tasks := make([]taskset.Task, n)
		for i := range tasks {
			p := int64(10 + rng.Intn(90))
			tasks[i] = task(string(rune('a'+i)), p, 1+int64(rng.Intn(int(p/4))), i)
		}
		target := tasks[n-1]
		hp := tasks[:n-1]

		before, err := ResponseTime(target, hp, 0)
		if err != nil {
			t.Fatal(err)
		}

		bumped := make([]taskset.Task, len(hp))
		copy(bumped, hp)
		j := rng.Intn(len(bumped))
		if bumped[j].WCET < bumped[j].Deadline {
			bumped[j].WCET++
		}

		after, err := ResponseTime(target, bumped, 0)
		if err != nil {
			t.Fatal(err)
		}
		if before.Schedulable && after.Schedulable && after.ResponseTime < before.ResponseTime {
			t.Fatalf("iteration %d: response decreased from %d to %d", iter, before.ResponseTime, after.ResponseTime)
		}
		if !before.Schedulable && after.Schedulable {
			t.Fatalf("iteration %d: raising interference made the task schedulable", iter)
		}
	}
}

func TestAnalyze_ConsistentWithLiuLayland(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	checked := 0
	for iter := 0; iter < 500; iter++ {
		n := 1 + rng.Intn(6)
		doc := &taskfile.Document{Name: "rand", Unit: "ms"}
		for i := 0; i < n; i++ {
			p := int64(10 + rng.Intn(490))
			c := 1 + int64(rng.Float64()*float64(p)/float64(n))
			doc.Tasks = append(doc.Tasks, taskfile.RawTask{Name: string(rune('a' + i)), Period: p, WCET: c})
		}
		ts, err := taskset.BuildFromRaw(doc, taskset.PolicyRateMonotonic)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		if analysis.EvaluateBound(ts).Verdict != analysis.Schedulable {
			continue
		}
		checked++

		result, err := Analyze(ts, Config{})
		if err != nil {
			t.Fatalf("analyze: %v", err)
		}
		if !result.Schedulable {
			t.Fatalf("iteration %d: Liu-Layland accepted a set RTA rejects: %+v", iter, result.Tasks)
		}
	}
	if checked == 0 {
		t.Fatal("no task set fell under the Liu-Layland bound")
	}
}

func assertResponse(t *testing.T, tr TaskResponse, name string, r int64, ok bool) {
	t.Helper()
	if tr.Task != name {
		t.Errorf("expected task %s, got %s", name, tr.Task)
	}
	if tr.ResponseTime != r {
		t.Errorf("task %s: expected R=%d, got %d", name, r, tr.ResponseTime)
	}
	if tr.Schedulable != ok {
		t.Errorf("task %s: expected schedulable=%v, got %v", name, ok, tr.Schedulable)
	}
}
