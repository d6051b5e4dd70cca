package metricspush

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	collectormetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

const (
	ExporterRemoteWrite = "prometheus_remote_write"
	ExporterPushgateway = "prometheus_pushgateway"
	ExporterOTLP        = "otlp"

	defaultInterval = 15 * time.Second
	exportTimeout   = 5 * time.Second
)

// Settings describes one push target.
type Settings struct {
	Exporter       string
	Endpoint       string
	AuthToken      string
	Interval       time.Duration
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// Exporter periodically gathers a registry and ships it to the configured target.
type Exporter struct {
	settings   Settings
	gatherer   prometheus.Gatherer
	log        *zap.Logger
	httpClient *http.Client
	resource   *resourcepb.Resource

	otlpAddress string
	otlpSecure  bool
	grpcConn    *grpc.ClientConn

	stopCh    chan struct{}
	doneCh    chan struct{}
	errorOnce atomic.Bool
}

// NewExporter validates settings. An empty exporter kind returns nil, nil.
func NewExporter(settings Settings, gatherer prometheus.Gatherer, log *zap.Logger) (*Exporter, error) {
	settings.Exporter = strings.ToLower(strings.TrimSpace(settings.Exporter))
	settings.Endpoint = strings.TrimSpace(settings.Endpoint)
	settings.AuthToken = strings.TrimSpace(settings.AuthToken)
	if settings.Exporter == "" {
		return nil, nil
	}
	if settings.Endpoint == "" {
		return nil, errors.New("metrics push endpoint is required")
	}
	if settings.Interval <= 0 {
		settings.Interval = defaultInterval
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if log == nil {
		log = zap.NewNop()
	}

	e := &Exporter{
		settings:   settings,
		gatherer:   gatherer,
		log:        log.Named("metrics.push"),
		httpClient: &http.Client{Timeout: exportTimeout},
		resource:   buildResource(settings.ServiceName, settings.ServiceVersion, settings.Environment),
	}

	switch settings.Exporter {
	case ExporterRemoteWrite:
		if _, err := url.ParseRequestURI(settings.Endpoint); err != nil {
			return nil, fmt.Errorf("invalid metrics push endpoint: %w", err)
		}
	case ExporterPushgateway:
		if strings.TrimSpace(settings.ServiceName) == "" {
			return nil, errors.New("pushgateway job is required")
		}
	case ExporterOTLP:
		addr, secure, err := parseOTLPEndpoint(settings.Endpoint)
		if err != nil {
			return nil, err
		}
		e.otlpAddress = addr
		e.otlpSecure = secure
	default:
		return nil, fmt.Errorf("unsupported metrics push exporter: %s", settings.Exporter)
	}
	return e, nil
}

func parseOTLPEndpoint(endpoint string) (string, bool, error) {
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return "", false, fmt.Errorf("invalid metrics push endpoint: %w", err)
		}
		if parsed.Host == "" {
			return "", false, errors.New("metrics push endpoint host is required")
		}
		secure := parsed.Scheme == "https" || parsed.Scheme == "grpcs"
		return parsed.Host, secure, nil
	}
	return endpoint, false, nil
}

func (e *Exporter) Start() {
	if e == nil || e.stopCh != nil {
		return
	}
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})

	go func() {
		defer close(e.doneCh)
		ticker := time.NewTicker(e.settings.Interval)
		defer ticker.Stop()
		e.exportOnce()
		for {
			select {
			case <-ticker.C:
				e.exportOnce()
			case <-e.stopCh:
				// Final flush so short-lived runs still report.
				e.exportOnce()
				return
			}
		}
	}()
}

func (e *Exporter) Stop(ctx context.Context) error {
	if e == nil || e.stopCh == nil {
		return nil
	}
	close(e.stopCh)
	var err error
	select {
	case <-e.doneCh:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if e.grpcConn != nil {
		_ = e.grpcConn.Close()
	}
	return err
}

// Export gathers and pushes once.
func (e *Exporter) Export(ctx context.Context) error {
	families, err := e.gatherer.Gather()
	if err != nil {
		return err
	}
	if len(families) == 0 {
		return nil
	}

	switch e.settings.Exporter {
	case ExporterRemoteWrite:
		return e.exportRemoteWrite(ctx, families)
	case ExporterPushgateway:
		return e.exportPushgateway(ctx)
	case ExporterOTLP:
		return e.exportOTLP(ctx, families)
	default:
		return fmt.Errorf("unsupported exporter: %s", e.settings.Exporter)
	}
}

func (e *Exporter) exportOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()
	if err := e.Export(ctx); err != nil {
		e.logExportError(err)
		return
	}
	e.errorOnce.Store(false)
}

// logExportError warns once per failure streak.
func (e *Exporter) logExportError(err error) {
	if e.errorOnce.CompareAndSwap(false, true) {
		e.log.Warn("metrics push failed",
			zap.String("exporter", e.settings.Exporter),
			zap.Error(err),
		)
	}
}

func (e *Exporter) exportRemoteWrite(ctx context.Context, families []*dto.MetricFamily) error {
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
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.settings.Endpoint, bytes.NewReader(compressed))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if e.settings.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.settings.AuthToken)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("remote write returned %s", resp.Status)
	}
	return nil
}

func (e *Exporter) exportPushgateway(ctx context.Context) error {
	pusher := push.New(e.settings.Endpoint, e.settings.ServiceName).
		Gatherer(e.gatherer).
		Client(e.httpClient)
	if env := strings.TrimSpace(e.settings.Environment); env != "" {
		pusher = pusher.Grouping("environment", env)
	}
	if e.settings.AuthToken != "" {
		pusher = pusher.Header(http.Header{"Authorization": []string{"Bearer " + e.settings.AuthToken}})
	}
	return pusher.PushContext(ctx)
}

func (e *Exporter) exportOTLP(ctx context.Context, families []*dto.MetricFamily) error {
	if e.grpcConn == nil {
		if err := e.connectOTLP(); err != nil {
			return err
		}
	}

	metrics := buildOTLPMetrics(families, uint64(time.Now().UnixNano()))
	if len(metrics) == 0 {
		return nil
	}

	rm := &metricspb.ResourceMetrics{
		Resource: e.resource,
		ScopeMetrics: []*metricspb.ScopeMetrics{{
			Scope:   &commonpb.InstrumentationScope{Name: "directdebit.metricspush"},
			Metrics: metrics,
		}},
	}

	if e.settings.AuthToken != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+e.settings.AuthToken)
	}

	client := collectormetricspb.NewMetricsServiceClient(e.grpcConn)
	_, err := client.Export(ctx, &collectormetricspb.ExportMetricsServiceRequest{
		ResourceMetrics: []*metricspb.ResourceMetrics{rm},
	})
	return err
}

func (e *Exporter) connectOTLP() error {
	var creds credentials.TransportCredentials
	if e.otlpSecure {
		creds = credentials.NewClientTLSFromCert(nil, "")
	} else {
		creds = insecure.NewCredentials()
	}
	conn, err := grpc.NewClient(e.otlpAddress, grpc.WithTransportCredentials(creds))
	if err != nil {
		return err
	}
	e.grpcConn = conn
	return nil
}

func buildResource(serviceName, serviceVersion, environment string) *resourcepb.Resource {
	attrs := make([]*commonpb.KeyValue, 0, 3)
	for _, kv := range [][2]string{
		{"service.name", serviceName},
		{"service.version", serviceVersion},
		{"deployment.environment", environment},
	} {
		if strings.TrimSpace(kv[1]) == "" {
			continue
		}
		attrs = append(attrs, stringKeyValue(kv[0], kv[1]))
	}
	if len(attrs) == 0 {
		return &resourcepb.Resource{}
	}
	return &resourcepb.Resource{Attributes: attrs}
}

func stringKeyValue(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}},
	}
}

// buildRemoteWriteSeries flattens counters and gauges; other types are skipped.
func buildRemoteWriteSeries(families []*dto.MetricFamily, timestampMs int64) []prompb.TimeSeries {
	series := make([]prompb.TimeSeries, 0, len(families))
	for _, family := range families {
		for _, m := range family.GetMetric() {
			value, ok := sampleValue(family.GetType(), m)
			if !ok {
				continue
			}
			labels := make([]prompb.Label, 0, len(m.GetLabel())+1)
			labels = append(labels, prompb.Label{Name: "__name__", Value: family.GetName()})
			for _, label := range m.GetLabel() {
				labels = append(labels, prompb.Label{Name: label.GetName(), Value: label.GetValue()})
			}
			sort.Slice(labels, func(i, j int) bool {
				return labels[i].Name < labels[j].Name
			})

			series = append(series, prompb.TimeSeries{
				Labels:  labels,
				Samples: []prompb.Sample{{Value: value, Timestamp: timestampMs}},
			})
		}
	}
	return series
}

func buildOTLPMetrics(families []*dto.MetricFamily, now uint64) []*metricspb.Metric {
	metrics := make([]*metricspb.Metric, 0, len(families))
	for _, family := range families {
		points := buildOTLPDataPoints(family, now)
		if len(points) == 0 {
			continue
		}
		out := &metricspb.Metric{Name: family.GetName(), Description: family.GetHelp()}
		switch family.GetType() {
		case dto.MetricType_COUNTER:
			out.Data = &metricspb.Metric_Sum{Sum: &metricspb.Sum{
				IsMonotonic:            true,
				AggregationTemporality: metricspb.AggregationTemporality_AGGREGATION_TEMPORALITY_CUMULATIVE,
				DataPoints:             points,
			}}
		case dto.MetricType_GAUGE:
			out.Data = &metricspb.Metric_Gauge{Gauge: &metricspb.Gauge{DataPoints: points}}
		default:
			continue
		}
		metrics = append(metrics, out)
	}
	return metrics
}

func buildOTLPDataPoints(family *dto.MetricFamily, now uint64) []*metricspb.NumberDataPoint {
	points := make([]*metricspb.NumberDataPoint, 0, len(family.GetMetric()))
	for _, m := range family.GetMetric() {
		value, ok := sampleValue(family.GetType(), m)
		if !ok {
			continue
		}
		var attrs []*commonpb.KeyValue
		for _, label := range m.GetLabel() {
			if label == nil {
				continue
			}
			attrs = append(attrs, stringKeyValue(label.GetName(), label.GetValue()))
		}
		points = append(points, &metricspb.NumberDataPoint{
			Attributes:   attrs,
			TimeUnixNano: now,
			Value:        &metricspb.NumberDataPoint_AsDouble{AsDouble: value},
		})
	}
	return points
}

func sampleValue(metricType dto.MetricType, m *dto.Metric) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch metricType {
	case dto.MetricType_COUNTER:
		if m.GetCounter() == nil {
			return 0, false
		}
		return m.GetCounter().GetValue(), true
	case dto.MetricType_GAUGE:
		if m.GetGauge() == nil {
			return 0, false
		}
		return m.GetGauge().GetValue(), true
	default:
		return 0, false
	}
}
