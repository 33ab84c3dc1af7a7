package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/todmy/docguard/internal/app"
	"github.com/todmy/docguard/internal/auth"
	"github.com/todmy/docguard/internal/config"
	"github.com/todmy/docguard/internal/decompose"
	"github.com/todmy/docguard/internal/embeddings/embeddingstest"
	"github.com/todmy/docguard/internal/llm/llmtest"
)

func setupCLI(t *testing.T) *llmtest.Scripted {
	t.Helper()
	oracle := llmtest.New()
	logger = zap.NewNop()
	cfg = config.Default()
	useDB = false
	appOptions = []app.Option{
		app.WithGenerator(oracle),
		app.WithEmbedder(embeddingstest.New()),
	}
	t.Cleanup(func() { appOptions = nil })
	return oracle
}

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const installDoc = `# Installation

Download the archive and unpack it into the tools directory on your workstation.

# Upgrading

Stop the daemon, replace the binary and start the daemon again afterwards.
`

const billingDoc = `# Invoices

Invoices are emailed monthly to the billing contact listed on the account.
`

func TestDecomposeCmd_Preserve(t *testing.T) {
	oracle := setupCLI(t)
	decomposeOpts = decompose.Options{PreserveStructure: true, MaxModules: decompose.DefaultMaxModules}

	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := runDecompose(cmd, []string{writeDoc(t, "install.md", installDoc)}); err != nil {
		t.Fatalf("runDecompose failed: %v", err)
	}

	var result decompose.Result
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(result.Modules) != 2 {
		t.Fatalf("expected 2 modules, got %d", len(result.Modules))
	}
	if result.Summary.Mode != decompose.ModePreserve {
		t.Errorf("expected preserve mode, got %q", result.Summary.Mode)
	}
	if n := len(oracle.Calls()); n != 0 {
		t.Errorf("preserve mode should not call the oracle, got %d calls", n)
	}
}

func TestDecomposeCmd_MissingFile(t *testing.T) {
	setupCLI(t)
	err := runDecompose(&cobra.Command{}, []string{filepath.Join(t.TempDir(), "nope.md")})
	if err == nil || !strings.Contains(err.Error(), "nope.md") {
		t.Fatalf("expected read error naming the file, got %v", err)
	}
}

func TestScanCmd_UnrelatedDocuments(t *testing.T) {
	oracle := setupCLI(t)
	scanOpts = decompose.Options{PreserveStructure: true, MaxModules: decompose.DefaultMaxModules}
	scanProject = ""
	scanStore = true
	t.Cleanup(func() { scanStore = false })

	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	files := []string{writeDoc(t, "install.md", installDoc), writeDoc(t, "billing.md", billingDoc)}
	if err := runScan(cmd, files); err != nil {
		t.Fatalf("runScan failed: %v", err)
	}

	var got scanOutput
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(got.Documents) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(got.Documents))
	}
	if got.Report == nil || len(got.Report.Conflicts) != 0 {
		t.Fatalf("expected an empty report, got %+v", got.Report)
	}
	if got.Report.Summary.ModulesScanned != 3 {
		t.Errorf("expected 3 scanned modules, got %d", got.Report.Summary.ModulesScanned)
	}
	if got.Stored == nil || got.Stored.Created != 0 {
		t.Errorf("expected nothing stored, got %+v", got.Stored)
	}
	if n := len(oracle.Calls()); n != 0 {
		t.Errorf("unrelated modules should not reach the oracle, got %d calls", n)
	}
}

func TestScanCmd_InvalidProject(t *testing.T) {
	setupCLI(t)
	scanProject = "not-a-uuid"
	t.Cleanup(func() { scanProject = "" })

	if err := runScan(&cobra.Command{}, nil); err == nil {
		t.Fatal("expected an error for an invalid project ID")
	}
}

func TestRefreshCmd_NeedsDatabase(t *testing.T) {
	setupCLI(t)
	if err := runRefresh(&cobra.Command{}, nil); err == nil {
		t.Fatal("expected refresh without --db to fail")
	}
}

func TestTokenCmd(t *testing.T) {
	setupCLI(t)
	cfg.JWTSecret = "test-secret"
	tokenUser = "user-42"
	tokenEmail = "dev@example.com"
	tokenTTL = auth.DefaultConfig().TokenDuration

	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := runToken(cmd, nil); err != nil {
		t.Fatalf("runToken failed: %v", err)
	}

	authCfg := auth.DefaultConfig()
	authCfg.SecretKey = "test-secret"
	verifier, err := auth.NewVerifier(authCfg)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	claims, err := verifier.ValidateToken(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if claims.UserID != "user-42" {
		t.Errorf("expected user-42, got %q", claims.UserID)
	}

	cfg.JWTSecret = ""
	if err := runToken(cmd, nil); err == nil {
		t.Error("expected an error without JWT_SECRET")
	}
}
