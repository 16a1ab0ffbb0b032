package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bindCommon struct {
	Enabled bool
}

type bindEndpoint struct {
	URL     string `config:"Url"`
	Retries int
}

type bindMode string

type bindTarget struct {
	bindCommon

	Host      string
	Port      int
	Ratio     float64
	Timeout   time.Duration
	Level     slog.Level
	Mode      bindMode
	Tags      []string
	Ports     []uint16
	Primary   bindEndpoint
	Fallback  *bindEndpoint
	Endpoints []bindEndpoint
	Labels    map[string]string
	Limits    map[string]int
	Renamed   string `config:"Alias"`
	Skipped   string `config:"-"`
	Untouched string
	Optional  *int
}

func buildConfig(t *testing.T, values map[string]string) Configuration {
	t.Helper()
	cfg, err := NewBuilder().AddMap(values).Build()
	require.NoError(t, err)
	return cfg
}

func TestBind_AllSupportedShapes(t *testing.T) {
	cfg := buildConfig(t, map[string]string{
		"Svc:Enabled":             "true",
		"Svc:host":                "localhost",
		"Svc:PORT":                "8080",
		"Svc:Ratio":               "0.5",
		"Svc:Timeout":             "1m30s",
		"Svc:Level":               "WARN",
		"Svc:Mode":                "strict",
		"Svc:Tags":                "a, b ,c",
		"Svc:Ports:0":             "80",
		"Svc:Ports:1":             "443",
		"Svc:Primary:Url":         "http://primary",
		"Svc:Primary:Retries":     "3",
		"Svc:Fallback:Url":        "http://fallback",
		"Svc:Endpoints:0:Url":     "http://e0",
		"Svc:Endpoints:1:Url":     "http://e1",
		"Svc:Endpoints:1:Retries": "7",
		"Svc:Labels:team":         "core",
		"Svc:Limits:cpu":          "4",
		"Svc:Alias":               "renamed",
		"Svc:Skipped":             "nope",
		"Svc:Optional":            "42",
	})

	target := bindTarget{Untouched: "kept"}
	require.NoError(t, Bind(cfg, "Svc", &target))

	assert.True(t, target.Enabled)
	assert.Equal(t, "localhost", target.Host)
	assert.Equal(t, 8080, target.Port)
	assert.InDelta(t, 0.5, target.Ratio, 0.0001)
	assert.Equal(t, 90*time.Second, target.Timeout)
	assert.Equal(t, slog.LevelWarn, target.Level)
	assert.Equal(t, bindMode("strict"), target.Mode)
	assert.Equal(t, []string{"a", "b", "c"}, target.Tags)
	assert.Equal(t, []uint16{80, 443}, target.Ports)
	assert.Equal(t, bindEndpoint{URL: "http://primary", Retries: 3}, target.Primary)
	require.NotNil(t, target.Fallback)
	assert.Equal(t, "http://fallback", target.Fallback.URL)
	require.Len(t, target.Endpoints, 2)
	assert.Equal(t, 7, target.Endpoints[1].Retries)
	assert.Equal(t, map[string]string{"team": "core"}, target.Labels)
	assert.Equal(t, map[string]int{"cpu": 4}, target.Limits)
	assert.Equal(t, "renamed", target.Renamed)
	assert.Empty(t, target.Skipped)
	assert.Equal(t, "kept", target.Untouched)
	require.NotNil(t, target.Optional)
	assert.Equal(t, 42, *target.Optional)
}

func TestBind_LastBindingWinsForOverlappingFields(t *testing.T) {
	cfg := buildConfig(t, map[string]string{
		"Base:Host": "base-host",
		"Base:Port": "1",
		"Over:Port": "2",
	})

	var target bindTarget
	require.NoError(t, Bind(cfg, "Base", &target))
	require.NoError(t, Bind(cfg, "Over", &target))

	assert.Equal(t, "base-host", target.Host)
	assert.Equal(t, 2, target.Port)
}

func TestBind_Errors(t *testing.T) {
	cfg := buildConfig(t, map[string]string{"Svc:Port": "not-a-number", "Svc:Timeout": "soon"})

	t.Run("should_reject_non_pointer_target", func(t *testing.T) {
		require.ErrorIs(t, Bind(cfg, "Svc", bindTarget{}), ErrBindTargetNotPointer)
	})

	t.Run("should_reject_non_struct_target", func(t *testing.T) {
		var s string
		require.ErrorIs(t, Bind(cfg, "Svc", &s), ErrBindTargetNotStruct)
	})

	t.Run("should_report_conversion_failures_with_path", func(t *testing.T) {
		var target struct{ Port int }
		err := Bind(cfg, "Svc", &target)
		require.ErrorIs(t, err, ErrBindConversion)
		assert.Contains(t, err.Error(), "Svc:Port")
	})

	t.Run("should_report_bad_durations", func(t *testing.T) {
		var target struct{ Timeout time.Duration }
		require.ErrorIs(t, Bind(cfg, "Svc", &target), ErrBindConversion)
	})
}

func TestBind_MissingSectionLeavesDefaults(t *testing.T) {
	cfg := buildConfig(t, map[string]string{"Other:Port": "1"})

	target := bindTarget{Port: 5432, Fallback: nil}
	require.NoError(t, Bind(cfg, "Svc", &target))
	assert.Equal(t, 5432, target.Port)
	assert.Nil(t, target.Fallback)
}
