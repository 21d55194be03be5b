package main

import (
	"path/filepath"
	"testing"

	"dorm-engine/internal/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestRun_WritesWorkbook(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("LEDGER_DRIVER", "memory")
	t.Setenv("NOTIFY_STREAM", "")
	t.Setenv("MQTT_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "error")

	out := filepath.Join(t.TempDir(), "report.xlsx")
	err := run([]string{"--seed", "../../internal/seed/testdata/dorm.yaml",
		"--as-user", "s1", "--as-role", "dorm_supervisor", "--out", out})
	require.NoError(t, err)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(report.SheetGatePasses)
	require.NoError(t, err)
	assert.Len(t, rows, 3, "header plus g1, g2")

	rooms, err := f.GetRows(report.SheetOccupancy)
	require.NoError(t, err)
	assert.Len(t, rooms, 3)
}

func TestRun_RequiresActor(t *testing.T) {
	err := run([]string{"--out", filepath.Join(t.TempDir(), "x.xlsx")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--as-user")
}
