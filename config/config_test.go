package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfigs(t *testing.T, queues, tables string) string {
	t.Helper()
	var root = t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "config", "queues_config.json"), []byte(queues), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "config", "tables_config.json"), []byte(tables), 0o644))
	return root
}

func TestLoad(t *testing.T) {
	var root = writeConfigs(t,
		`{"queue_transport_units": "rk_transport_units"}`,
		`{"Транспортные единицы": "transport_units"}`)

	reg, err := Load(root, DefaultDayBoundary, DefaultTimezone)
	require.NoError(t, err)

	require.Equal(t, "rk_transport_units", reg.Queues["queue_transport_units"])

	table, ok := reg.TableFor("Транспортные единицы")
	require.True(t, ok)
	require.Equal(t, "transport_units", table)

	_, ok = reg.TableFor("нет такого отчёта")
	require.False(t, ok)

	require.Equal(t, "Europe/Moscow", reg.Location.String())
	require.Equal(t, 19, reg.DayBoundary.Hour())
	require.Equal(t, 58, reg.DayBoundary.Minute())
}

func TestLoadMissingFiles(t *testing.T) {
	var _, err = Load(t.TempDir(), DefaultDayBoundary, DefaultTimezone)
	require.Error(t, err)
}

func TestLoadBadJSON(t *testing.T) {
	var root = writeConfigs(t, `{`, `{}`)
	var _, err = Load(root, DefaultDayBoundary, DefaultTimezone)
	require.Error(t, err)
}

func TestLoadBadBoundary(t *testing.T) {
	var root = writeConfigs(t, `{}`, `{}`)

	var _, err = Load(root, "25:99", DefaultTimezone)
	require.Error(t, err)

	_, err = Load(root, DefaultDayBoundary, "Mars/Olympus")
	require.Error(t, err)
}
