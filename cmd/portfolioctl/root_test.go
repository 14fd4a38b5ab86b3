package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleaurre/portfolio-web/internal/contentapi"
	"github.com/aleaurre/portfolio-web/internal/publish"
	"github.com/aleaurre/portfolio-web/internal/version"
)

func writeFile(t *testing.T, root, name, body string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
}

func contentRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "blog/posts/aprendiendo-go.mdx", "---\ntitle: Aprendiendo Go\npublishedAt: \"2024-01-10\"\n---\nUno.\n")
	writeFile(t, root, "blog/posts/series-temporales.mdx", "---\ntitle: Series temporales\npublishedAt: \"2024-05-02\"\n---\nDos.\n")
	writeFile(t, root, "blog/posts/borrador.mdx", "---\ntitle: Borrador\n---\nTres.\n")
	writeFile(t, root, "work/projects/dashboard-ventas.mdx", "---\ntitle: Dashboard de ventas\npublishedAt: \"2023-11-20\"\n---\nProyecto.\n")
	writeFile(t, root, "public/robots.txt", "User-agent: *\n")
	return root
}

type recorder struct {
	objects []string
	params  map[string]string
}

func (r *recorder) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	r.objects = append(r.objects, *in.Key)
	return &s3.PutObjectOutput{}, nil
}

func (r *recorder) PutParameter(_ context.Context, in *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	if r.params == nil {
		r.params = map[string]string{}
	}
	r.params[*in.Name] = *in.Value
	return &ssm.PutParameterOutput{}, nil
}

// run executes the CLI with args and returns stdout.
func run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	a.out, a.errOut = &out, &errOut
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestList_Table(t *testing.T) {
	root := contentRoot(t)
	out, err := run(t, newApp(nil, nil), "list", "blog", "--content-dir", root)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "SLUG"))
	assert.True(t, strings.HasPrefix(lines[1], "series-temporales"))
	assert.Contains(t, lines[1], "2024-05-02")
	assert.True(t, strings.HasPrefix(lines[2], "aprendiendo-go"))
	// undated items go last
	assert.True(t, strings.HasPrefix(lines[3], "borrador"))
	assert.Contains(t, lines[3], " - ")
}

func TestList_QueryFlags(t *testing.T) {
	root := contentRoot(t)
	out, err := run(t, newApp(nil, nil), "list", "blog", "--content-dir", root,
		"--exclude", "series-temporales", "--start", "1", "--end", "1", "--json")
	require.NoError(t, err)

	var resp contentapi.ListResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "blog", resp.Section)
	// total is the section size, the flags only narrow the items
	assert.Equal(t, 3, resp.Total)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "aprendiendo-go", resp.Items[0].Slug)
}

func TestList_InvalidSection(t *testing.T) {
	_, err := run(t, newApp(nil, nil), "list", "recipes", "--content-dir", contentRoot(t))
	require.Error(t, err)
}

func TestList_MissingSection(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "blog/posts/solo.mdx", "hola\n")
	_, err := run(t, newApp(nil, nil), "list", "work", "--content-dir", root)
	require.Error(t, err)
}

func TestList_ContentDirFromEnv(t *testing.T) {
	root := contentRoot(t)
	t.Setenv("PORTFOLIOCTL_CONTENT_DIR", root)

	out, err := run(t, newApp(nil, nil), "list", "work")
	require.NoError(t, err)
	assert.Contains(t, out, "dashboard-ventas")
}

func TestList_ConfigFile(t *testing.T) {
	root := contentRoot(t)
	cfgPath := filepath.Join(t.TempDir(), "portfolioctl.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("content-dir: "+root+"\nexclude:\n  - borrador\n"), 0o644))

	out, err := run(t, newApp(nil, nil), "list", "blog", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "aprendiendo-go")
	assert.NotContains(t, out, "borrador")
}

func TestList_FlagBeatsEnv(t *testing.T) {
	root := contentRoot(t)
	t.Setenv("PORTFOLIOCTL_CONTENT_DIR", filepath.Join(t.TempDir(), "missing"))

	_, err := run(t, newApp(nil, nil), "list", "blog", "--content-dir", root)
	require.NoError(t, err)
}

func TestConfigFile_Missing(t *testing.T) {
	_, err := run(t, newApp(nil, nil), "list", "blog", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestInvalidPattern(t *testing.T) {
	_, err := run(t, newApp(nil, nil), "list", "blog", "--content-dir", contentRoot(t), "--pattern", "[")
	require.Error(t, err)
}

func TestBuild(t *testing.T) {
	root := contentRoot(t)
	out := filepath.Join(t.TempDir(), "site")

	stdout, err := run(t, newApp(nil, nil), "build", "--content-dir", root, "--out", out, "--base-url", "https://preview.example.com")
	require.NoError(t, err)
	assert.Contains(t, stdout, "exported")

	for _, name := range []string{
		"index.html",
		"blog/index.html",
		"blog/aprendiendo-go/index.html",
		"work/dashboard-ventas/index.html",
		"sitemap.xml",
		"rss.xml",
		"404.html",
		"robots.txt",
	} {
		_, err := os.Stat(filepath.Join(out, filepath.FromSlash(name)))
		assert.NoError(t, err, name)
	}

	sitemap, err := os.ReadFile(filepath.Join(out, "sitemap.xml"))
	require.NoError(t, err)
	assert.Contains(t, string(sitemap), "https://preview.example.com/blog/aprendiendo-go")
}

func TestBuild_InvalidRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "blog/posts/solo.mdx", "hola\n")
	_, err := run(t, newApp(nil, nil), "build", "--content-dir", root, "--out", t.TempDir())
	require.Error(t, err)
}

func TestPublish_DryRun(t *testing.T) {
	a := newApp(nil, nil)
	a.newPublishClients = func(context.Context, settings) (publish.S3API, publish.SSMAPI, publish.Signer, error) {
		t.Fatal("dry run must not create AWS clients")
		return nil, nil, nil, nil
	}
	out, err := run(t, a, "publish", "--content-dir", contentRoot(t), "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "packed (dry run)")
	assert.Contains(t, out, "signed:     false")
}

func TestPublish_Uploads(t *testing.T) {
	rec := &recorder{}
	a := newApp(nil, nil)
	a.newPublishClients = func(_ context.Context, conf settings) (publish.S3API, publish.SSMAPI, publish.Signer, error) {
		assert.Equal(t, "bundles", conf.Bucket)
		return rec, rec, nil, nil
	}

	out, err := run(t, a, "publish", "--content-dir", contentRoot(t), "--bucket", "bundles", "--prefix", "site", "--ssm-param", "/site/live")
	require.NoError(t, err)
	assert.Contains(t, out, "published")

	require.Len(t, rec.objects, 1)
	assert.True(t, strings.HasPrefix(rec.objects[0], "site/"))
	assert.True(t, strings.HasSuffix(rec.objects[0], ".tar.gz"))
	require.Contains(t, rec.params, "/site/live")
	assert.Len(t, rec.params["/site/live"], 64)
}

func TestPublish_RequiresBucket(t *testing.T) {
	rec := &recorder{}
	a := newApp(nil, nil)
	a.newPublishClients = func(context.Context, settings) (publish.S3API, publish.SSMAPI, publish.Signer, error) {
		return rec, rec, nil, nil
	}
	_, err := run(t, a, "publish", "--content-dir", contentRoot(t))
	require.ErrorIs(t, err, publish.ErrInvalidOptions)
	assert.Empty(t, rec.objects)
}

func TestVersion(t *testing.T) {
	out, err := run(t, newApp(nil, nil), "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, version.AppName+" "))

	out, err = run(t, newApp(nil, nil), "version", "--json")
	require.NoError(t, err)
	var vi version.Info
	require.NoError(t, json.Unmarshal([]byte(out), &vi))
	assert.Equal(t, version.AppName, vi.AppName)
}
