package obs

import (
	"runtime"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitBuildInfoReplacesLabels(t *testing.T) {
	InitBuildInfo("1.0.0", "abc123")
	InitBuildInfo("1.1.0", "def456")

	if got := testutil.CollectAndCount(buildInfo); got != 1 {
		t.Fatalf("expected a single build_info series, got %d", got)
	}
	if v := testutil.ToFloat64(buildInfo.WithLabelValues("1.1.0", "def456", runtime.Version())); v != 1 {
		t.Fatalf("build_info = %v, want 1", v)
	}
}

func TestInitBuildInfoFallsBackToVCSRevision(t *testing.T) {
	InitBuildInfo("dev", "")

	if v := testutil.ToFloat64(buildInfo.WithLabelValues("dev", vcsRevision(), runtime.Version())); v != 1 {
		t.Fatalf("build_info = %v, want 1", v)
	}
}
