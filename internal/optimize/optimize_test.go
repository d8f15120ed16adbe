package optimize

import (
	"archive/zip"
	"bytes"
	"testing"

	kgzip "github.com/klauspost/compress/gzip"
	"github.com/ows4444/pluginforge/internal/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

// readZip extracts every entry's content. DefaultOptions recompresses with
// "gzip", which recompress.go stores as a raw gzip stream under a Store
// (uncompressed-by-zip) entry rather than archive/zip's native Deflate
// method, so entries are gunzipped here before comparison.
func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		buf := &bytes.Buffer{}
		_, err = buf.ReadFrom(rc)
		rc.Close()
		require.NoError(t, err)
		out[f.Name] = gunzipIfNeeded(t, buf.Bytes())
	}
	return out
}

func gunzipIfNeeded(t *testing.T, data []byte) string {
	t.Helper()
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return string(data)
	}
	gr, err := kgzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer gr.Close()
	buf := &bytes.Buffer{}
	_, err = buf.ReadFrom(gr)
	require.NoError(t, err)
	return buf.String()
}

func TestOptimize_DropsUnreachableAndDocFiles(t *testing.T) {
	data := buildZip(t, map[string]string{
		"plugin.manifest.json": `{"name":"greeter"}`,
		"index.js":             "require('./lib'); // entry\nexport const Greeter = {};\n",
		"lib.js":                "module.exports = {};\n",
		"unused.js":             "module.exports = { dead: true };\n",
		"README.md":             "docs",
		"index.test.js":         "test('x', () => {});",
	})

	result, err := Optimize(data, &manifest.Manifest{Name: "greeter"}, DefaultOptions())
	require.NoError(t, err)

	contents := readZip(t, result.Optimized)
	assert.Contains(t, contents, "plugin.manifest.json")
	assert.Contains(t, contents, "index.js")
	assert.Contains(t, contents, "lib.js")
	assert.NotContains(t, contents, "unused.js")
	assert.NotContains(t, contents, "README.md")
	assert.NotContains(t, contents, "index.test.js")
}

func TestOptimize_StripsComments(t *testing.T) {
	data := buildZip(t, map[string]string{
		"plugin.manifest.json": `{"name":"greeter"}`,
		"index.js":             "// a plain comment\nconst x = 1; /* block */\n",
	})
	result, err := Optimize(data, &manifest.Manifest{Name: "greeter"}, DefaultOptions())
	require.NoError(t, err)

	contents := readZip(t, result.Optimized)
	assert.NotContains(t, contents["index.js"], "a plain comment")
	assert.NotContains(t, contents["index.js"], "block")
}

func TestOptimize_PreservesLicenseMarkerComments(t *testing.T) {
	data := buildZip(t, map[string]string{
		"plugin.manifest.json": `{"name":"greeter"}`,
		"index.js":             "/*! license notice */\nconst x = 1;\n",
	})
	result, err := Optimize(data, &manifest.Manifest{Name: "greeter"}, DefaultOptions())
	require.NoError(t, err)

	contents := readZip(t, result.Optimized)
	assert.Contains(t, contents["index.js"], "license notice")
}

func TestOptimize_RecompressHonorsConfiguredAlgorithm(t *testing.T) {
	data := buildZip(t, map[string]string{
		"plugin.manifest.json": `{"name":"greeter"}`,
		"index.js":             "const x = 1;\n",
	})

	for _, algorithm := range []string{"deflate", "gzip", "brotli"} {
		t.Run(algorithm, func(t *testing.T) {
			result, err := Optimize(data, &manifest.Manifest{Name: "greeter"}, Options{CompressionLevel: 6, Algorithm: algorithm})
			require.NoError(t, err)
			contents := readZip(t, result.Optimized)
			assert.Equal(t, "const x = 1;\n", contents["index.js"])
		})
	}
}

func TestOptimize_RecompressRejectsUnsupportedAlgorithm(t *testing.T) {
	data := buildZip(t, map[string]string{
		"plugin.manifest.json": `{"name":"greeter"}`,
		"index.js":             "const x = 1;\n",
	})

	_, err := Optimize(data, &manifest.Manifest{Name: "greeter"}, Options{CompressionLevel: 6, Algorithm: "lzma"})
	require.Error(t, err)
	var unsupported *ErrUnsupportedAlgorithm
	assert.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "lzma", unsupported.Algorithm)
}

func TestOptimize_SavingsRatioComputed(t *testing.T) {
	big := ""
	for i := 0; i < 500; i++ {
		big += "// padding comment that contributes nothing at all to runtime behavior\n"
	}
	data := buildZip(t, map[string]string{
		"plugin.manifest.json": `{"name":"greeter"}`,
		"index.js":             big + "const x = 1;\n",
	})
	result, err := Optimize(data, &manifest.Manifest{Name: "greeter"}, DefaultOptions())
	require.NoError(t, err)
	assert.Greater(t, result.SavingsRatio, 0.0)
}
