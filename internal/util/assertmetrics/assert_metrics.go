// Package assertmetrics checks metric values in the text exposition format.
package assertmetrics

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
)

// ReadMetrics scrapes reg over HTTP and returns the exposition text.
func ReadMetrics(t assert.TestingT, reg prometheus.Gatherer) string {
	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if !assert.NoError(t, err, "error fetching metrics") {
		return ""
	}

	body, err := io.ReadAll(resp.Body)
	assert.NoError(t, err, "error reading response body")
	assert.NoError(t, resp.Body.Close(), "error closing response body")
	return string(body)
}

func AssertValueInReg(t assert.TestingT, reg prometheus.Gatherer, metricName string, labels prometheus.Labels, value float64) {
	AssertValueInStr(t, ReadMetrics(t, reg), metricName, labels, value)
}

// AssertValueInStr looks for one sample line. Labels are matched in the
// sorted order the exposition format uses.
func AssertValueInStr(t assert.TestingT, allMetrics string, metricName string, labels prometheus.Labels, value float64) {
	expectedMetric := fmt.Sprintf("%s%s %v", metricName, formatLabels(labels), value)
	assert.Contains(t, allMetrics, expectedMetric, "expected metric not found")
}

func formatLabels(labels prometheus.Labels) string {
	if len(labels) == 0 {
		return ""
	}
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	slices.Sort(names)

	pairs := make([]string, len(names))
	for i, name := range names {
		pairs[i] = fmt.Sprintf("%s=%q", name, labels[name])
	}
	return "{" + strings.Join(pairs, ",") + "}"
}
