// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
	"gvisor.dev/futexlock/lockbench/config"
	"gvisor.dev/futexlock/pkg/lockstress"
)

// writeResults writes results to w in the given format.
func writeResults(w io.Writer, format config.OutputFormat, results []*lockstress.Result) error {
	switch format {
	case config.OutputText:
		return writeText(w, results)
	case config.OutputJSON:
		enc := json.NewEncoder(w)
		for _, r := range results {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("encoding %s result: %w", r.Workload, err)
			}
		}
		return nil
	case config.OutputPrometheus:
		return writePrometheus(w, results)
	}
	return fmt.Errorf("unknown output format %v", format)
}

func writeText(w io.Writer, results []*lockstress.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprint(tw, "WORKLOAD\tGOROUTINES\tSPIN\tACQUISITIONS\tELAPSED\tPER SECOND\tWAITS\tTIMEOUTS\tWAKES\tWAKE ALLS\n")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%v\t%.0f\t%d\t%d\t%d\t%d\n",
			r.Workload, r.Goroutines, r.SpinLimit, r.Acquisitions, r.Elapsed, r.PerSecond(),
			r.Futex.Waits, r.Futex.Timeouts, r.Futex.Wakes, r.Futex.WakeAlls)
	}
	return tw.Flush()
}

// metric describes one exported Prometheus metric.
type metric struct {
	name  string
	help  string
	typ   dto.MetricType
	value func(r *lockstress.Result) float64
}

// metrics are written in this order, one family per metric.
var metrics = []metric{
	{
		name:  "lockbench_acquisitions_total",
		help:  "Lock acquisitions made by the workload.",
		typ:   dto.MetricType_COUNTER,
		value: func(r *lockstress.Result) float64 { return float64(r.Acquisitions) },
	},
	{
		name:  "lockbench_try_failures_total",
		help:  "TryLock calls that failed.",
		typ:   dto.MetricType_COUNTER,
		value: func(r *lockstress.Result) float64 { return float64(r.TryFailures) },
	},
	{
		name:  "lockbench_elapsed_seconds",
		help:  "Wall time of the workload.",
		typ:   dto.MetricType_GAUGE,
		value: func(r *lockstress.Result) float64 { return r.Elapsed.Seconds() },
	},
	{
		name:  "lockbench_acquisitions_per_second",
		help:  "Lock acquisition rate of the workload.",
		typ:   dto.MetricType_GAUGE,
		value: func(r *lockstress.Result) float64 { return r.PerSecond() },
	},
	{
		name:  "lockbench_futex_waits_total",
		help:  "Futex waits made by the workload's locks.",
		typ:   dto.MetricType_COUNTER,
		value: func(r *lockstress.Result) float64 { return float64(r.Futex.Waits) },
	},
	{
		name:  "lockbench_futex_timeouts_total",
		help:  "Futex waits that timed out.",
		typ:   dto.MetricType_COUNTER,
		value: func(r *lockstress.Result) float64 { return float64(r.Futex.Timeouts) },
	},
	{
		name:  "lockbench_futex_wakes_total",
		help:  "Single-waiter futex wakes made by the workload's locks.",
		typ:   dto.MetricType_COUNTER,
		value: func(r *lockstress.Result) float64 { return float64(r.Futex.Wakes) },
	},
	{
		name:  "lockbench_futex_wake_alls_total",
		help:  "All-waiter futex wakes made by the workload's locks.",
		typ:   dto.MetricType_COUNTER,
		value: func(r *lockstress.Result) float64 { return float64(r.Futex.WakeAlls) },
	},
}

func resultLabels(r *lockstress.Result) []*dto.LabelPair {
	return []*dto.LabelPair{
		{Name: proto.String("goroutines"), Value: proto.String(strconv.Itoa(r.Goroutines))},
		{Name: proto.String("spin_limit"), Value: proto.String(strconv.Itoa(r.SpinLimit))},
		{Name: proto.String("workload"), Value: proto.String(r.Workload)},
	}
}

func writePrometheus(w io.Writer, results []*lockstress.Result) error {
	for _, m := range metrics {
		family := &dto.MetricFamily{
			Name: proto.String(m.name),
			Help: proto.String(m.help),
			Type: m.typ.Enum(),
		}
		for _, r := range results {
			pt := &dto.Metric{Label: resultLabels(r)}
			v := proto.Float64(m.value(r))
			switch m.typ {
			case dto.MetricType_COUNTER:
				pt.Counter = &dto.Counter{Value: v}
			default:
				pt.Gauge = &dto.Gauge{Value: v}
			}
			family.Metric = append(family.Metric, pt)
		}
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			return fmt.Errorf("writing metric %s: %w", m.name, err)
		}
	}
	return nil
}
