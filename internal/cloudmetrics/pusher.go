package cloudmetrics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"github.com/anoteng/regnskap/internal/config"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

const (
	exporterPrometheusRemoteWrite = "prometheus_remote_write"
	exporterPrometheusPushgateway = "prometheus_pushgateway"
	defaultPushTimeout            = 5 * time.Second
)

// Pusher ships a snapshot of gathered metrics to an external collector.
type Pusher interface {
	Push(ctx context.Context, gatherer prometheus.Gatherer) error
}

// NewPusher builds a pusher from config. A disabled or invalid configuration
// yields nil so that callers can skip pushing.
func NewPusher(cfg config.Config, logger *zap.Logger) Pusher {
	if logger == nil {
		logger = zap.NewNop()
	}
	pc := cfg.Metrics
	if !pc.Enabled {
		return nil
	}

	exporter := strings.ToLower(strings.TrimSpace(pc.Exporter))
	endpoint := strings.TrimSpace(pc.Endpoint)
	if exporter == "" {
		logger.Warn("metrics push disabled", zap.Error(errors.New("metrics push exporter is required")))
		return nil
	}
	if endpoint == "" {
		logger.Warn("metrics push disabled", zap.Error(errors.New("metrics push endpoint is required")))
		return nil
	}

	switch exporter {
	case exporterPrometheusRemoteWrite:
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			logger.Warn("metrics push disabled", zap.Error(fmt.Errorf("invalid metrics push endpoint: %w", err)))
			return nil
		}
		return NewRemoteWritePusher(endpoint, pc.AuthToken)
	case exporterPrometheusPushgateway:
		job := strings.TrimSpace(pc.Job)
		if job == "" {
			job = cfg.AppName
		}
		return NewPushgatewayPusher(endpoint, job, map[string]string{
			"environment": strings.TrimSpace(cfg.Environment),
		})
	default:
		logger.Warn("metrics push disabled", zap.String("exporter", exporter))
		return nil
	}
}

// RemoteWritePusher sends metrics to a Prometheus remote_write endpoint.
type RemoteWritePusher struct {
	endpoint   string
	authToken  string
	httpClient *http.Client
}

// NewRemoteWritePusher returns a pusher for Prometheus remote_write.
func NewRemoteWritePusher(endpoint, authToken string) *RemoteWritePusher {
	return &RemoteWritePusher{
		endpoint:  endpoint,
		authToken: strings.TrimSpace(authToken),
		httpClient: &http.Client{Timeout: defaultPushTimeout},
	}
}

// Push gathers once and posts a snappy-compressed WriteRequest.
func (p *RemoteWritePusher) Push(ctx context.Context, gatherer prometheus.Gatherer) error {
	if p == nil || gatherer == nil {
		return nil
	}

	families, err := gatherer.Gather()
	if err != nil {
		return err
	}
	if len(families) == 0 {
		return nil
	}

	series := buildRemoteWriteSeries(families, time.Now().UnixMilli())
	if len(series) == 0 {
		return nil
	}

	req := &prompb.WriteRequest{Timeseries: series}
	payload, err := proto.Marshal(protoadapt.MessageV2Of(req))
	if err != nil {
		return err
	}

	compressed := snappy.Encode(nil, payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(compressed))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if p.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("remote write returned %s", resp.Status)
	}
	return nil
}

// PushgatewayPusher sends metrics to a Prometheus Pushgateway.
type PushgatewayPusher struct {
	endpoint string
	job      string
	grouping map[string]string
}

// NewPushgatewayPusher returns a pusher for Prometheus Pushgateway.
func NewPushgatewayPusher(endpoint, job string, grouping map[string]string) *PushgatewayPusher {
	return &PushgatewayPusher{
		endpoint: endpoint,
		job:      strings.TrimSpace(job),
		grouping: grouping,
	}
}

// Push replaces the job's metric group on the Pushgateway.
func (p *PushgatewayPusher) Push(ctx context.Context, gatherer prometheus.Gatherer) error {
	if p == nil || gatherer == nil {
		return nil
	}
	if strings.TrimSpace(p.endpoint) == "" {
		return errors.New("pushgateway endpoint is required")
	}
	if p.job == "" {
		return errors.New("pushgateway job is required")
	}

	pusher := push.New(p.endpoint, p.job).Gatherer(exportedJobGatherer{gatherer})
	for key, value := range p.grouping {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		pusher = pusher.Grouping(key, value)
	}

	return pusher.PushContext(ctx)
}

// exportedJobGatherer renames a metric's own "job" label to "exported_job".
// The Pushgateway reserves "job" for the grouping key.
type exportedJobGatherer struct {
	prometheus.Gatherer
}

func (g exportedJobGatherer) Gather() ([]*dto.MetricFamily, error) {
	families, err := g.Gatherer.Gather()
	if err != nil {
		return nil, err
	}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "job" {
					label.Name = proto.String("exported_job")
				}
			}
			sort.Slice(metric.Label, func(i, j int) bool {
				return metric.Label[i].GetName() < metric.Label[j].GetName()
			})
		}
	}
	return families, nil
}

// metricPrefix limits remote_write to the engine's own families.
const metricPrefix = "regnskap_"

// buildRemoteWriteSeries flattens counters and gauges to one series each and
// histograms to their _count and _sum series.
func buildRemoteWriteSeries(families []*dto.MetricFamily, timestampMs int64) []prompb.TimeSeries {
	var series []prompb.TimeSeries
	for _, family := range families {
		name := family.GetName()
		if !strings.HasPrefix(name, metricPrefix) {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, s := range samplesOf(name, family.GetType(), metric) {
				series = append(series, prompb.TimeSeries{
					Labels:  seriesLabels(s.name, metric.GetLabel()),
					Samples: []prompb.Sample{{Value: s.value, Timestamp: timestampMs}},
				})
			}
		}
	}
	return series
}

type namedSample struct {
	name  string
	value float64
}

func samplesOf(name string, kind dto.MetricType, metric *dto.Metric) []namedSample {
	switch kind {
	case dto.MetricType_COUNTER:
		if c := metric.GetCounter(); c != nil {
			return []namedSample{{name, c.GetValue()}}
		}
	case dto.MetricType_GAUGE:
		if g := metric.GetGauge(); g != nil {
			return []namedSample{{name, g.GetValue()}}
		}
	case dto.MetricType_HISTOGRAM:
		if h := metric.GetHistogram(); h != nil {
			return []namedSample{
				{name + "_count", float64(h.GetSampleCount())},
				{name + "_sum", h.GetSampleSum()},
			}
		}
	}
	return nil
}

func seriesLabels(name string, pairs []*dto.LabelPair) []prompb.Label {
	labels := make([]prompb.Label, 0, len(pairs)+1)
	labels = append(labels, prompb.Label{Name: "__name__", Value: name})
	for _, pair := range pairs {
		labels = append(labels, prompb.Label{Name: pair.GetName(), Value: pair.GetValue()})
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })
	return labels
}
