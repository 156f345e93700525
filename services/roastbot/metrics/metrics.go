// Copyright 2023 AI Redefined Inc. <dev+cogment@ai-r.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roastbot"

// Outcomes of a roast request
const (
	OutcomeOK       = "ok"
	OutcomeFallback = "fallback"
	OutcomeEmpty    = "empty"
	OutcomeNoKey    = "no_key"
)

// Metrics holds the collectors of the service, a nil *Metrics is valid and records nothing
type Metrics struct {
	registry     *prometheus.Registry
	roasts       *prometheus.CounterVec
	rateLimited  prometheus.Counter
	llmDuration  prometheus.Histogram
	llmTokens    *prometheus.CounterVec
	corpusChunks prometheus.Gauge
}

// New creates the collectors and registers them, along with the process and go collectors, on a dedicated registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		roasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roasts_total",
			Help:      "Number of roast requests by outcome.",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Number of requests rejected by the rate limiter.",
		}),
		llmDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of the successful LLM requests.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Number of tokens consumed by kind.",
		}, []string{"kind"}),
		corpusChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "corpus_chunks",
			Help:      "Number of chunks in the retrieval index.",
		}),
	}
	m.registry.MustRegister(
		m.roasts,
		m.rateLimited,
		m.llmDuration,
		m.llmTokens,
		m.corpusChunks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the metrics in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRoast(outcome string) {
	if m == nil {
		return
	}
	m.roasts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) ObserveLLMRequest(duration time.Duration, promptTokens int, completionTokens int) {
	if m == nil {
		return
	}
	m.llmDuration.Observe(duration.Seconds())
	m.llmTokens.WithLabelValues("prompt").Add(float64(promptTokens))
	m.llmTokens.WithLabelValues("completion").Add(float64(completionTokens))
}

func (m *Metrics) SetCorpusChunks(count int) {
	if m == nil {
		return
	}
	m.corpusChunks.Set(float64(count))
}
