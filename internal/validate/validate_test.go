package validate

import (
	"archive/zip"
	"bytes"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ows4444/pluginforge/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	c, err := cache.New(cache.DefaultConfig(), testLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return New(c, DefaultOptions(), testLogger())
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const validManifest = `{
  "name": "greeter",
  "version": "1.0.0",
  "description": "says hello",
  "author": "a",
  "license": "MIT",
  "entryPoint": "Greeter",
  "compatibilityVersion": "1.0.0"
}`

func TestValidateManifest_Valid(t *testing.T) {
	v := newTestValidator(t)
	verdict, m, err := v.ValidateManifest("digest1", []byte(validManifest))
	require.NoError(t, err)
	assert.True(t, verdict.IsValid)
	require.NotNil(t, m)
	assert.Equal(t, "greeter", m.Name)
}

func TestValidateManifest_InvalidName(t *testing.T) {
	v := newTestValidator(t)
	bad := `{"name":"Bad Name!","version":"1.0.0","entryPoint":"X"}`
	verdict, _, err := v.ValidateManifest("digest2", []byte(bad))
	require.NoError(t, err)
	assert.False(t, verdict.IsValid)
	assert.NotEmpty(t, verdict.Errors)
}

func TestValidateStructure_RequiresManifest(t *testing.T) {
	v := newTestValidator(t)
	data := buildZip(t, map[string]string{"index.js": "export const Greeter = {}"})
	verdict, _, err := v.ValidateStructure("digest3", data, nil)
	require.NoError(t, err)
	assert.False(t, verdict.IsValid)
}

func TestValidateStructure_Valid(t *testing.T) {
	v := newTestValidator(t)
	data := buildZip(t, map[string]string{
		"plugin.manifest.json": validManifest,
		"index.js":             "export const Greeter = {}",
	})
	verdict, zr, err := v.ValidateStructure("digest4", data, nil)
	require.NoError(t, err)
	assert.True(t, verdict.IsValid)
	require.NotNil(t, zr)
}

func TestValidateSecurity_DetectsUnsafeImport(t *testing.T) {
	v := newTestValidator(t)
	data := buildZip(t, map[string]string{
		"plugin.manifest.json": validManifest,
		"index.js":             "const fs = require('fs');",
	})
	_, zr, err := v.ValidateStructure("digest5", data, nil)
	require.NoError(t, err)

	verdict, err := v.ValidateSecurity("digest5", zr)
	require.NoError(t, err)
	assert.False(t, verdict.IsValid)
	assert.Contains(t, verdict.Errors[0], "fs")
}

func TestValidateSecurity_CachesSecondLookup(t *testing.T) {
	v := newTestValidator(t)
	data := buildZip(t, map[string]string{
		"plugin.manifest.json": validManifest,
		"index.js":             "const fs = require('fs');",
	})
	_, zr, err := v.ValidateStructure("digest6", data, nil)
	require.NoError(t, err)

	first, err := v.ValidateSecurity("digest6", zr)
	require.NoError(t, err)

	second, err := v.ValidateSecurity("digest6", zr)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestValidateSecurity_AllowsSafeCode(t *testing.T) {
	v := newTestValidator(t)
	data := buildZip(t, map[string]string{
		"plugin.manifest.json": validManifest,
		"index.js":             "export const Greeter = { greet: () => 'hi' };",
	})
	_, zr, err := v.ValidateStructure("digest7", data, nil)
	require.NoError(t, err)

	verdict, err := v.ValidateSecurity("digest7", zr)
	require.NoError(t, err)
	assert.True(t, verdict.IsValid)
}

func TestValidateSecurity_IterationBudget(t *testing.T) {
	v := New(mustCache(t), Options{RegexTimeout: time.Second, MaxContentSize: 1 << 20, MaxIterations: 1}, testLogger())
	data := buildZip(t, map[string]string{
		"plugin.manifest.json": validManifest,
		"index.js":             "line one\nline two\nline three\n",
	})
	_, zr, err := v.ValidateStructure("digest8", data, nil)
	require.NoError(t, err)

	verdict, err := v.ValidateSecurity("digest8", zr)
	require.NoError(t, err)
	assert.False(t, verdict.IsValid)
	assert.Contains(t, verdict.Errors[0], "too complex")
}

func mustCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.New(cache.DefaultConfig(), testLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}
