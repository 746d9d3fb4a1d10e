package metrics

import (
	"errors"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func findFamily(t *testing.T, r *Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := r.reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() == name {
			return fam
		}
	}
	t.Fatalf("metric family %s not found", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestObserveCommandRecordsOutcome(t *testing.T) {
	r := New()
	r.ObserveCommand("setDuty", 20*time.Millisecond, nil)
	r.ObserveCommand("setDuty", 5*time.Millisecond, errors.New("pin busy"))

	fam := findFamily(t, r, "hgc_command_latency_seconds")
	results := map[string]uint64{}
	for _, m := range fam.GetMetric() {
		if labelValue(m, "action") != "setDuty" {
			t.Errorf("unexpected action label on %v", m)
		}
		results[labelValue(m, "result")] = m.GetHistogram().GetSampleCount()
	}
	if results["success"] != 1 || results["failure"] != 1 {
		t.Errorf("sample counts by result = %v", results)
	}
}

func TestObserveTaskRunCountsByResult(t *testing.T) {
	r := New()
	r.ObserveTaskRun("lin-poll", nil)
	r.ObserveTaskRun("lin-poll", nil)
	r.ObserveTaskRun("lin-poll", errors.New("timeout"))

	fam := findFamily(t, r, "hgc_task_runs_total")
	counts := map[string]float64{}
	for _, m := range fam.GetMetric() {
		counts[labelValue(m, "result")] = m.GetCounter().GetValue()
	}
	if counts["success"] != 2 || counts["failure"] != 1 {
		t.Errorf("task run counts = %v", counts)
	}
}
