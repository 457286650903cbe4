package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cotoami/cotoami-go/internal/clock"
	"github.com/cotoami/cotoami-go/internal/logging"
	"github.com/cotoami/cotoami-go/internal/node"
	"github.com/cotoami/cotoami-go/internal/store"
)

func openTestStore(t *testing.T) *store.Database {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "import-test.db"), logging.Nop{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

const fixtureBasic = `{
	"cotos": [
		{
			"id": "f05c0f03-8bb0-430e-a4d2-714c2922e0cd",
			"content": "Nginx Ingress Controller",
			"summary": null,
			"posted_in_id": null,
			"as_cotonoma": false,
			"cotonoma": null,
			"repost_id": null,
			"reposted_in_ids": [],
			"inserted_at": 1507106650888,
			"updated_at": 1507106650888
		},
		{
			"id": "c27139f1-0000-430e-a4d2-714c2922e0ce",
			"content": "Kubernetes",
			"summary": null,
			"posted_in_id": null,
			"as_cotonoma": true,
			"cotonoma": {
				"id": "d5e4d3d2-0000-430e-a4d2-714c2922e0cf",
				"key": null,
				"name": "Kubernetes",
				"shared": false,
				"pinned": false,
				"timeline_revision": 1,
				"graph_revision": 1,
				"inserted_at": 1507106650000,
				"updated_at": 1507106650000,
				"last_post_timestamp": null
			},
			"repost_id": null,
			"reposted_in_ids": [],
			"inserted_at": 1507106650000,
			"updated_at": 1507106650000
		}
	],
	"connections": [
		{
			"start": "c27139f1-0000-430e-a4d2-714c2922e0ce",
			"end": "f05c0f03-8bb0-430e-a4d2-714c2922e0cd",
			"created_by": "amishi-1",
			"created_in": null,
			"order": 1,
			"created_at": 1507106701180
		}
	]
}`

func TestImportFileBasic(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t)
	localNodeID, err := node.Bootstrap(ctx, db, clock.Fixed{At: time.Unix(0, 0).UTC()}, "local", "")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	path := writeFixture(t, fixtureBasic)
	report, err := ImportFile(ctx, db, clock.System{}, localNodeID, path)
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	if report.Cotos != 1 {
		t.Errorf("expected 1 plain coto, got %d", report.Cotos)
	}
	if report.Cotonomas != 1 {
		t.Errorf("expected 1 cotonoma, got %d", report.Cotonomas)
	}
	if report.Itos != 1 {
		t.Errorf("expected 1 ito, got %d", report.Itos)
	}
	if report.Skipped != 0 {
		t.Errorf("expected nothing skipped, got %d", report.Skipped)
	}

	cotonoma, err := store.Read(ctx, db, func(sctx *store.Context) (*struct{ Name string }, error) {
		c, err := store.GetCotonoma(sctx, uuid.MustParse("d5e4d3d2-0000-430e-a4d2-714c2922e0cf"))
		if err != nil || c == nil {
			return nil, err
		}
		return &struct{ Name string }{c.Name}, nil
	})
	if err != nil {
		t.Fatalf("read imported cotonoma: %v", err)
	}
	if cotonoma == nil {
		t.Fatal("expected cotonoma to be imported")
	}
	if cotonoma.Name != "Kubernetes" {
		t.Errorf("expected cotonoma name %q, got %q", "Kubernetes", cotonoma.Name)
	}

	backingCoto, err := store.Read(ctx, db, func(sctx *store.Context) (*struct {
		Content *string
		Summary *string
	}, error) {
		c, err := store.GetCoto(sctx, uuid.MustParse("c27139f1-0000-430e-a4d2-714c2922e0ce"))
		if err != nil || c == nil {
			return nil, err
		}
		return &struct {
			Content *string
			Summary *string
		}{c.Content, c.Summary}, nil
	})
	if err != nil {
		t.Fatalf("read backing coto: %v", err)
	}
	if backingCoto == nil {
		t.Fatal("expected backing coto to be imported")
	}
	if backingCoto.Content != nil {
		t.Errorf("expected backing coto content to be empty, got %q", *backingCoto.Content)
	}
	if backingCoto.Summary == nil || *backingCoto.Summary != "Kubernetes" {
		t.Errorf("expected backing coto summary to carry the legacy content, got %v", backingCoto.Summary)
	}
}

// TestImportFileDefersOnDependencyOrder exercises the deferred-import path:
// the child coto appears before its parent cotonoma in the dump, so the
// first pass must skip it and a later pass must pick it up once the
// cotonoma lands.
func TestImportFileDefersOnDependencyOrder(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t)
	localNodeID, err := node.Bootstrap(ctx, db, clock.Fixed{At: time.Unix(0, 0).UTC()}, "local", "")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	fixture := `{
		"cotos": [
			{
				"id": "11111111-1111-1111-1111-111111111111",
				"content": "child",
				"summary": null,
				"posted_in_id": "22222222-2222-2222-2222-222222222222",
				"as_cotonoma": false,
				"cotonoma": null,
				"repost_id": null,
				"reposted_in_ids": [],
				"inserted_at": 1,
				"updated_at": 1
			},
			{
				"id": "33333333-3333-3333-3333-333333333333",
				"content": "Parent",
				"summary": null,
				"posted_in_id": null,
				"as_cotonoma": true,
				"cotonoma": {
					"id": "22222222-2222-2222-2222-222222222222",
					"key": null,
					"name": "Parent",
					"shared": false,
					"pinned": false,
					"timeline_revision": 1,
					"graph_revision": 1,
					"inserted_at": 1,
					"updated_at": 1,
					"last_post_timestamp": null
				},
				"repost_id": null,
				"reposted_in_ids": [],
				"inserted_at": 1,
				"updated_at": 1
			}
		],
		"connections": []
	}`

	report, err := ImportFile(ctx, db, clock.System{}, localNodeID, writeFixture(t, fixture))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.Cotos != 1 || report.Cotonomas != 1 || report.Skipped != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

// TestImportFileRejectsUnsatisfiableDependency confirms a coto naming a
// posted_in_id that appears nowhere in the dump, and doesn't already
// exist in the store, is rejected rather than deferred forever.
func TestImportFileRejectsUnsatisfiableDependency(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t)
	localNodeID, err := node.Bootstrap(ctx, db, clock.Fixed{At: time.Unix(0, 0).UTC()}, "local", "")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	fixture := `{
		"cotos": [
			{
				"id": "44444444-4444-4444-4444-444444444444",
				"content": "orphan",
				"summary": null,
				"posted_in_id": "55555555-5555-5555-5555-555555555555",
				"as_cotonoma": false,
				"cotonoma": null,
				"repost_id": null,
				"reposted_in_ids": [],
				"inserted_at": 1,
				"updated_at": 1
			}
		],
		"connections": []
	}`

	report, err := ImportFile(ctx, db, clock.System{}, localNodeID, writeFixture(t, fixture))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.Cotos != 0 {
		t.Errorf("expected the orphan coto not to be imported, got %d cotos", report.Cotos)
	}
	if report.Skipped != 1 {
		t.Errorf("expected 1 skipped row, got %d", report.Skipped)
	}
}
