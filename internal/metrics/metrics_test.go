// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveSegment(t *testing.T) {
	before := testutil.ToFloat64(SegmentsClosedTotal.WithLabelValues("test-seg", "native"))
	ObserveSegment("test-seg", "native", 90*time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(SegmentsClosedTotal.WithLabelValues("test-seg", "native")))
}

func TestAddBytesWrittenIgnoresNonPositive(t *testing.T) {
	AddBytesWritten("test-bytes", 0)
	AddBytesWritten("test-bytes", -5)
	AddBytesWritten("test-bytes", 1024)
	assert.Equal(t, 1024.0, testutil.ToFloat64(BytesWrittenTotal.WithLabelValues("test-bytes")))
}

func TestCaptureSlotsGauge(t *testing.T) {
	CaptureSlotsInUse.Set(0)
	CaptureSlotsInUse.Inc()
	CaptureSlotsInUse.Inc()
	assert.Equal(t, 2.0, GetCaptureSlotsInUse())
	CaptureSlotsInUse.Set(0)
}

func TestProcessCounters(t *testing.T) {
	IncProcTerminate("SIGTERM", "sent")
	IncProcWait("exit0")
	assert.GreaterOrEqual(t, testutil.ToFloat64(procTerminateTotal.WithLabelValues("SIGTERM", "sent")), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(procWaitTotal.WithLabelValues("exit0")), 1.0)
}
