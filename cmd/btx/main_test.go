package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"btxclinic/internal/blob"
	"btxclinic/internal/config"
	"btxclinic/internal/core"
	"btxclinic/internal/infra/logging"
	"btxclinic/pkg/domain"
)

func useConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		Storage: core.StorageConfig{Driver: core.StorageSQLite, SQLitePath: filepath.Join(dir, "state.db")},
		Blob:    blob.Config{Driver: blob.DriverFilesystem, FSRoot: filepath.Join(dir, "blobs")},
		Log:     logging.Config{Level: "error", File: filepath.Join(dir, "btx.log")},
		Metrics: config.MetricsNone,
	}
	prev := loadConfig
	loadConfig = func() (config.Config, error) { return cfg, nil }
	t.Cleanup(func() { loadConfig = prev })
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(&out).Run(append([]string{"btx"}, args...))
	return out.String(), err
}

func summary(t *testing.T) core.BackupSummary {
	t.Helper()
	out, err := run(t, "summary")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	var sum core.BackupSummary
	if err := json.Unmarshal([]byte(out), &sum); err != nil {
		t.Fatalf("decode summary %q: %v", out, err)
	}
	return sum
}

func seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	env, err := bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	defer env.Close()
	p, _, err := env.svc.CreatePatient(ctx, domain.Patient{Name: "Ana"})
	if err != nil {
		t.Fatalf("create patient: %v", err)
	}
	if _, _, err := env.svc.AttachRx(ctx, p.ID, []core.Upload{{Name: "rx.png", Mime: "image/png", Data: []byte("png-bytes")}}); err != nil {
		t.Fatalf("attach: %v", err)
	}
}

func TestExportWipeImportCycle(t *testing.T) {
	dir := useConfig(t)
	seed(t)

	if sum := summary(t); sum.Patients != 1 || sum.Images != 1 {
		t.Fatalf("unexpected summary after seed %+v", sum)
	}

	out, err := run(t, "export", "--out", dir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	backupPath := strings.TrimSpace(out)
	if !strings.HasPrefix(filepath.Base(backupPath), "BTX-Backup-") {
		t.Fatalf("unexpected backup path %q", backupPath)
	}
	if _, err := os.Stat(backupPath); err != nil {
		t.Fatalf("backup file missing: %v", err)
	}

	if _, err := run(t, "wipe"); err == nil {
		t.Fatalf("wipe without --yes must fail")
	}
	if sum := summary(t); sum.Patients != 1 {
		t.Fatalf("refused wipe must not change state: %+v", sum)
	}
	if _, err := run(t, "wipe", "--yes"); err != nil {
		t.Fatalf("wipe: %v", err)
	}
	if sum := summary(t); sum.Patients != 0 || sum.Images != 0 {
		t.Fatalf("unexpected summary after wipe %+v", sum)
	}

	out, err = run(t, "import", "--in", backupPath)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	var report core.ImportReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report %q: %v", out, err)
	}
	if report.Patients != 1 || report.Images != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if sum := summary(t); sum.Patients != 1 || sum.Images != 1 {
		t.Fatalf("unexpected summary after import %+v", sum)
	}
}

func TestImportRejectsMalformedBackup(t *testing.T) {
	dir := useConfig(t)
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`["not", "an", "object"]`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := run(t, "import", "--in", bad); err == nil {
		t.Fatalf("expected malformed backup error")
	}
	if _, err := run(t, "import", "--in", filepath.Join(dir, "absent.json")); err == nil {
		t.Fatalf("expected missing file error")
	}
	if _, err := run(t, "import"); err == nil {
		t.Fatalf("expected required flag error")
	}
}

func TestBootstrapConfigErrors(t *testing.T) {
	prev := loadConfig
	t.Cleanup(func() { loadConfig = prev })

	loadConfig = func() (config.Config, error) {
		return config.Config{Log: logging.Config{Level: "loud"}}, nil
	}
	if _, err := bootstrap(context.Background()); err == nil {
		t.Fatalf("expected log level error")
	}

	loadConfig = func() (config.Config, error) {
		return config.Config{
			Storage: core.StorageConfig{Driver: core.StorageMemory},
			Blob:    blob.Config{Driver: "ftp"},
			Log:     logging.Config{File: filepath.Join(t.TempDir(), "btx.log")},
		}, nil
	}
	if _, err := bootstrap(context.Background()); err == nil {
		t.Fatalf("expected blob driver error")
	}
}

func TestBootstrapWithPrometheus(t *testing.T) {
	prev := loadConfig
	t.Cleanup(func() { loadConfig = prev })
	loadConfig = func() (config.Config, error) {
		return config.Config{
			Storage: core.StorageConfig{Driver: core.StorageMemory},
			Blob:    blob.Config{Driver: blob.DriverMemory},
			Log:     logging.Config{File: filepath.Join(t.TempDir(), "btx.log")},
			Metrics: config.MetricsPrometheus,
		}, nil
	}
	env, err := bootstrap(context.Background())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	defer env.Close()
	if env.registry == nil {
		t.Fatalf("expected a prometheus registry")
	}
	families, err := env.registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("expected metrics after open")
	}
}

func TestBootstrapWritesTraceAndAuditLines(t *testing.T) {
	dir := t.TempDir()
	tracePath := filepath.Join(dir, "trace", "spans.jsonl")
	logPath := filepath.Join(dir, "btx.log")
	prev := loadConfig
	t.Cleanup(func() { loadConfig = prev })
	loadConfig = func() (config.Config, error) {
		return config.Config{
			Storage:   core.StorageConfig{Driver: core.StorageMemory},
			Blob:      blob.Config{Driver: blob.DriverMemory},
			Log:       logging.Config{Level: "info", Format: logging.FormatJSON, File: logPath},
			Metrics:   config.MetricsNone,
			TraceFile: tracePath,
			AuditLog:  true,
		}, nil
	}

	env, err := bootstrap(context.Background())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if _, _, err := env.svc.CreatePatient(context.Background(), domain.Patient{Name: "Ana"}); err != nil {
		t.Fatalf("create patient: %v", err)
	}
	env.Close()

	raw, err := os.ReadFile(tracePath)
	if err != nil {
		t.Fatalf("read trace file: %v", err)
	}
	var span core.JSONTraceEntry
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &span); err != nil {
		t.Fatalf("decode span %q: %v", lines[len(lines)-1], err)
	}
	if span.Operation != "create_patient" || span.Status != "success" {
		t.Fatalf("unexpected span %+v", span)
	}

	logs, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(logs), `"message":"audit"`) || !strings.Contains(string(logs), `"op":"create_patient"`) {
		t.Fatalf("expected an audit line for create_patient, got %s", logs)
	}
}
