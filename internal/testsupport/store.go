package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"casefile/internal/artifact"
	"casefile/internal/config"
	"casefile/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SeedArtifact inserts an artifact row in the given status, backed by the
// provided path. The caller is responsible for any file behind the path.
func SeedArtifact(t testing.TB, st *store.Store, caseID, name, path string, status artifact.Status) *artifact.Artifact {
	t.Helper()

	a := &artifact.Artifact{
		ID:          uuid.NewString(),
		CaseID:      caseID,
		Name:        name,
		Fingerprint: uuid.NewString(),
		Path:        path,
		Location:    artifact.LocationStorage,
		Format:      artifact.DetectFormat(name),
		Status:      status,
	}
	if err := st.InsertArtifact(context.Background(), a); err != nil {
		t.Fatalf("store.InsertArtifact: %v", err)
	}
	return a
}

// SeedStaleArtifact inserts an artifact in the given processing status whose
// heartbeat expired an hour ago, modeling a worker that died mid-stage.
func SeedStaleArtifact(t testing.TB, st *store.Store, caseID, name, path string, status artifact.Status) *artifact.Artifact {
	t.Helper()

	expired := time.Now().UTC().Add(-time.Hour)
	a := &artifact.Artifact{
		ID:            uuid.NewString(),
		CaseID:        caseID,
		Name:          name,
		Fingerprint:   uuid.NewString(),
		Path:          path,
		Location:      artifact.LocationStorage,
		Format:        artifact.DetectFormat(name),
		Status:        status,
		LastHeartbeat: &expired,
	}
	if err := st.InsertArtifact(context.Background(), a); err != nil {
		t.Fatalf("store.InsertArtifact: %v", err)
	}
	return a
}

// SeedIndicator inserts an enabled indicator for a case.
func SeedIndicator(t testing.TB, st *store.Store, caseID string, indType artifact.IndicatorType, value string) *artifact.Indicator {
	t.Helper()

	ind := &artifact.Indicator{
		ID:      uuid.NewString(),
		CaseID:  caseID,
		Type:    indType,
		Value:   value,
		Enabled: true,
	}
	if err := st.UpsertIndicator(context.Background(), ind); err != nil {
		t.Fatalf("store.UpsertIndicator: %v", err)
	}
	return ind
}
