package docs

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAuthority = "apkextract.documents"

func newTestProvider(t *testing.T) *FSProvider {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/apks", 0755))
	return NewFSProvider(fsys, testAuthority, "primary")
}

func writeDoc(t *testing.T, p *FSProvider, u URI, content string) {
	t.Helper()
	w, err := p.OpenWriter(context.Background(), u)
	require.NoError(t, err)
	_, err = io.WriteString(w, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestURIHelpers(t *testing.T) {
	tree := BuildTreeURI(testAuthority, "primary:apks")
	assert.True(t, IsTreeURI(tree))
	assert.False(t, IsDocumentURI(tree))

	treeID, err := TreeDocumentID(tree)
	require.NoError(t, err)
	assert.Equal(t, "primary:apks", treeID)

	doc, err := BuildDocumentURIUsingTree(tree, "primary:apks/Foo.apk")
	require.NoError(t, err)
	assert.True(t, IsTreeURI(doc))
	assert.True(t, IsDocumentURI(doc))
	assert.Contains(t, doc.String(), "primary:apks%2FFoo.apk")

	id, err := DocumentID(doc)
	require.NoError(t, err)
	assert.Equal(t, "primary:apks/Foo.apk", id)

	single := BuildDocumentURI(testAuthority, "primary:apks/Foo.apk")
	assert.True(t, IsDocumentURI(single))
	assert.False(t, IsTreeURI(single))
	_, err = TreeDocumentID(single)
	assert.True(t, errors.Is(err, ErrInvalidURI))

	assert.Equal(t, testAuthority, doc.Authority())
}

func TestParseURI(t *testing.T) {
	_, err := ParseURI("content://a/tree/primary%3A")
	assert.NoError(t, err)

	for _, bad := range []string{"", "file:///tmp/x", "content://a/other/x", "content:///tree/x"} {
		_, err := ParseURI(bad)
		assert.True(t, errors.Is(err, ErrInvalidURI), "uri %q", bad)
	}
}

func TestCanonical(t *testing.T) {
	tree := BuildTreeURI(testAuthority, "primary:apks")

	c, err := Canonical(tree)
	require.NoError(t, err)
	id, err := DocumentID(c)
	require.NoError(t, err)
	assert.Equal(t, "primary:apks", id)

	single := BuildDocumentURI(testAuthority, "primary:x.apk")
	c, err = Canonical(single)
	require.NoError(t, err)
	assert.Equal(t, single, c)
}

func TestKey(t *testing.T) {
	viaSaveDir, err := BuildDocumentURIUsingTree(BuildTreeURI(testAuthority, "primary:apks"), "primary:apks/Foo.apk")
	require.NoError(t, err)
	viaRoot, err := BuildDocumentURIUsingTree(BuildTreeURI(testAuthority, "primary:"), "primary:apks/Foo.apk")
	require.NoError(t, err)
	single := BuildDocumentURI(testAuthority, "primary:apks/Foo.apk")

	want := testAuthority + "/primary:apks/Foo.apk"
	assert.Equal(t, want, Key(viaSaveDir))
	assert.Equal(t, want, Key(viaRoot))
	assert.Equal(t, want, Key(single))

	assert.Equal(t, testAuthority+"/primary:apks", Key(BuildTreeURI(testAuthority, "primary:apks")))
	assert.NotEqual(t, Key(single), Key(BuildDocumentURI("other.provider", "primary:apks/Foo.apk")))
	assert.Equal(t, "not a uri", Key(URI("not a uri")))
}

func TestCreateDocument_CollisionSuffix(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	tree := p.TreeFor("apks")

	first, err := p.CreateDocument(ctx, tree, MimeAPK, "Test")
	require.NoError(t, err)
	second, err := p.CreateDocument(ctx, tree, MimeAPK, "Test.apk")
	require.NoError(t, err)
	third, err := p.CreateDocument(ctx, tree, MimeAPK, "Test")
	require.NoError(t, err)

	names := make([]string, 0, 3)
	for _, u := range []URI{first, second, third} {
		m, err := p.Query(ctx, u)
		require.NoError(t, err)
		names = append(names, m.DisplayName)
		assert.Equal(t, MimeAPK, m.MimeType)
	}
	assert.Equal(t, []string{"Test.apk", "Test (1).apk", "Test (2).apk"}, names)
}

func TestCreateDocument_MissingParent(t *testing.T) {
	p := newTestProvider(t)
	_, err := p.CreateDocument(context.Background(), p.TreeFor("nope"), MimeAPK, "x")
	assert.True(t, errors.Is(err, ErrDocumentMissing))
}

func TestWriteReadQueryDelete(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	u, err := p.CreateDocument(ctx, p.TreeFor("apks"), "text/plain", "notes.txt")
	require.NoError(t, err)
	writeDoc(t, p, u, "hello world")

	r, err := p.OpenReader(ctx, u)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "hello world", string(data))

	m, err := p.Query(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, int64(11), m.Size)
	assert.Equal(t, "notes.txt", m.DisplayName)
	assert.True(t, strings.HasPrefix(m.MimeType, "text/plain"), m.MimeType)

	require.NoError(t, p.Delete(ctx, u))
	_, err = p.Query(ctx, u)
	assert.True(t, errors.Is(err, ErrDocumentMissing))
	assert.True(t, errors.Is(p.Delete(ctx, u), ErrDocumentMissing))
}

func TestList(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	tree := p.TreeFor("apks")

	for _, name := range []string{"b", "a"} {
		_, err := p.CreateDocument(ctx, tree, MimeAPK, name)
		require.NoError(t, err)
	}

	items, err := p.List(ctx, tree)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a.apk", items[0].DisplayName)
	assert.Equal(t, "b.apk", items[1].DisplayName)
	assert.True(t, IsTreeURI(items[0].URI))

	root, err := p.List(ctx, p.RootTree())
	require.NoError(t, err)
	require.Len(t, root, 1)
	assert.True(t, root[0].IsDir())
}

func TestExists_ToleratesURIShapes(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	u, err := p.CreateDocument(ctx, p.TreeFor("apks"), MimeAPK, "Foo")
	require.NoError(t, err)
	id, err := DocumentID(u)
	require.NoError(t, err)

	assert.True(t, Exists(ctx, p, u), "tree document URI")
	assert.True(t, Exists(ctx, p, BuildDocumentURI(testAuthority, id)), "single document URI")
	assert.True(t, Exists(ctx, p, p.TreeFor("apks")), "tree URI")

	assert.False(t, Exists(ctx, p, BuildDocumentURI(testAuthority, "primary:apks/Gone.apk")))
	assert.False(t, Exists(ctx, p, BuildDocumentURI("other.authority", id)))
	assert.False(t, Exists(ctx, p, URI("not a uri")))
}

func TestRootCannotBeDeleted(t *testing.T) {
	p := newTestProvider(t)
	assert.Error(t, p.Delete(context.Background(), p.RootTree()))
}
