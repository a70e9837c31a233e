package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	repo "github.com/joseph-ayodele/kyc-extractor/internal/repository"
)

const kbisText = `IDENTIFICATION DE LA PERSONNE MORALE
Immatriculation au RCS, numéro 123 456 789 R.C.S. Paris
Date d'immatriculation : 15/03/2019
Dénomination ou raison sociale : ACME SARL`

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	oldArgs, oldFlags := os.Args, flag.CommandLine
	t.Cleanup(func() { os.Args, flag.CommandLine = oldArgs, oldFlags })
	os.Args = append([]string{"kyc-analyze"}, args...)
	flag.CommandLine = flag.NewFlagSet("kyc-analyze", flag.ContinueOnError)
}

func TestRunSavesAndReleasesJournal(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "kbis.txt")
	require.NoError(t, os.WriteFile(input, []byte(kbisText), 0o644))
	dsn := "file:" + filepath.Join(dir, "journal.db")

	t.Setenv("KYC_CONFIG", "")
	t.Setenv("JOURNAL_DRIVER", "sqlite")
	t.Setenv("DB_URL", dsn)
	t.Setenv("LOG_LEVEL", "error")
	withArgs(t, "-save", "-text", input)

	require.Equal(t, 0, run())

	store, err := repo.Open(context.Background(), repo.Config{Driver: repo.DriverSQLite, DSN: dsn}, nil)
	require.NoError(t, err)
	defer store.Close()
	n, err := repo.NewAnalysisRepository(store, nil).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunUsageErrors(t *testing.T) {
	t.Setenv("KYC_CONFIG", "")
	withArgs(t)
	assert.Equal(t, 2, run())

	withArgs(t, "-config", filepath.Join(t.TempDir(), "missing.yaml"), "doc.png")
	assert.Equal(t, 2, run())
}

func TestRunMissingInput(t *testing.T) {
	t.Setenv("KYC_CONFIG", "")
	t.Setenv("JOURNAL_DRIVER", "none")
	t.Setenv("LOG_LEVEL", "error")
	withArgs(t, "-text", filepath.Join(t.TempDir(), "absent.txt"))
	assert.Equal(t, 1, run())
}
