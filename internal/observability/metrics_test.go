package observability

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordAndExport(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Predictor.RecordInference("cpu", 0.02, 3)
	m.Predictor.RecordInference("cpu", 0.03, 1)
	m.Predictor.RecordFallback("runtime-failed/cpu-sticky")
	m.Batch.RunStarted()
	m.Batch.RecordFile(nil, 1, 2)
	m.Batch.RecordFile(errors.New("boom"), 2, 2)
	m.Batch.RunFinished(false, 1.5)
	m.Dataset.RecordBuild(nil, 0.4, 8, 2, 0, 3)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Predictor.InferenceTotal.WithLabelValues("cpu")), 1e-9)
	assert.InDelta(t, 4, testutil.ToFloat64(m.Predictor.DetectionsTotal.WithLabelValues("cpu")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Batch.FilesTotal.WithLabelValues("error")), 1e-9)
	assert.InDelta(t, 0, testutil.ToFloat64(m.Batch.ActiveGauge), 1e-9)
	assert.InDelta(t, 3, testutil.ToFloat64(m.Dataset.ClassesGauge), 1e-9)

	path := filepath.Join(t.TempDir(), "boxlabel.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "boxlabel_inference_total{device=\"cpu\"} 2")
	assert.Contains(t, string(data), "boxlabel_dataset_pairs_total{split=\"train\"} 8")

	require.NoError(t, m.WriteTextfile(""))
}
