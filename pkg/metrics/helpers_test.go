package metrics

import (
	"fmt"

	dto "github.com/prometheus/client_model/go"
)

// fetchCounterValue returns the counter value of the first series in name
// carrying every label pair in labels (name, value, name, value...).
func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels ...string) (float64, error) {
	metric, err := findSeries(mfs, name, labels)
	if err != nil {
		return 0, err
	}
	return metric.GetCounter().GetValue(), nil
}

func fetchHistogram(mfs []*dto.MetricFamily, name string, labels ...string) (*dto.Histogram, error) {
	metric, err := findSeries(mfs, name, labels)
	if err != nil {
		return nil, err
	}
	return metric.GetHistogram(), nil
}

func findSeries(mfs []*dto.MetricFamily, name string, labels []string) (*dto.Metric, error) {
	var family *dto.MetricFamily
	for _, mf := range mfs {
		if mf.GetName() == name {
			family = mf
			break
		}
	}
	if family == nil {
		return nil, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range family.GetMetric() {
		if hasLabels(metric.GetLabel(), labels) {
			return metric, nil
		}
	}
	return nil, fmt.Errorf("metric %q has no series with labels %v", name, labels)
}

func hasLabels(pairs []*dto.LabelPair, labels []string) bool {
	for i := 0; i+1 < len(labels); i += 2 {
		found := false
		for _, pair := range pairs {
			if pair.GetName() == labels[i] && pair.GetValue() == labels[i+1] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
