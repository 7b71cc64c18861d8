package project

import (
	"context"
	"sync/atomic"
	"testing"

	"extendaudit/internal/artifact"
	"extendaudit/internal/structure"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const homePage = `{
  "id": "home",
  "securityDomains": ["Worker Data"],
  "include": ["util.script", "missing.script"],
  "presentation": {
    "body": {
      "type": "section",
      "id": "main",
      "children": [
        { "type": "text", "id": "greeting", "value": "<% util.greet(user) %>" }
      ]
    }
  }
}`

const siteMetadata = `{
  "applicationId": "app_abc",
  "errorPageConfigurations": [
    { "errorCode": "403", "pageId": "forbidden" }
  ]
}`

func TestBuild(t *testing.T) {
	sources := []artifact.Source{
		{Path: "site.smd", Kind: artifact.KindSiteMetadata, Text: siteMetadata},
		{Path: "home.pmd", Kind: artifact.KindPage, Text: homePage},
		{Path: "util.script", Text: "function greet(u) { return u; }\n{ greet: greet }\n"},
		{Path: "broken.pmd", Kind: artifact.KindPage, Text: "{ \"id\": }"},
		{Path: "notes.txt", Text: "ignored"},
	}

	pc, err := Build(context.Background(), sources, Options{Workers: 2})
	require.NoError(t, err)

	t.Run("Files ordered by path", func(t *testing.T) {
		assert.Equal(t, []string{"broken.pmd", "home.pmd", "site.smd", "util.script"}, pc.Paths())
		assert.Len(t, pc.Warnings, 1)
	})

	t.Run("Present and missing kinds", func(t *testing.T) {
		assert.True(t, pc.Has(artifact.KindPage))
		assert.True(t, pc.Has(artifact.KindScript))
		assert.Equal(t, []artifact.Kind{artifact.KindAppMetadata}, pc.FilesMissing)
	})

	t.Run("Parse errors stay on the file", func(t *testing.T) {
		broken := pc.File("broken.pmd")
		require.NotNil(t, broken)
		assert.Nil(t, broken.Model)
		require.NotNil(t, broken.ParseErr)
		assert.Equal(t, "broken.pmd", broken.ParseErr.Path)
		assert.Empty(t, broken.Scripts)
	})

	t.Run("Embedded scripts carry their field line", func(t *testing.T) {
		home := pc.File("home.pmd")
		require.NotNil(t, home)
		require.Len(t, home.Scripts, 1)
		s := home.Scripts[0]
		assert.True(t, s.OK())
		assert.Equal(t, 10, s.Source.StartLine)
		assert.Equal(t, "presentation.body.children[0].value", s.Source.FieldPath)
	})

	t.Run("Cross-file links", func(t *testing.T) {
		assert.True(t, pc.ErrorPageIDs["forbidden"])

		includes := pc.IncludesByPage["home.pmd"]
		require.Len(t, includes, 2)
		assert.Equal(t, "util.script", includes[0].Name)
		assert.Equal(t, 4, includes[0].Line)
		require.NotNil(t, includes[0].Script)
		assert.Equal(t, "util.script", includes[0].Script.Path())
		assert.Nil(t, includes[1].Script)
	})
}

func TestBuild_NoArtifacts(t *testing.T) {
	_, err := Build(context.Background(), nil, Options{})
	assert.ErrorIs(t, err, ErrNoArtifacts)

	_, err = Build(context.Background(), []artifact.Source{{Path: "readme.md"}}, Options{})
	assert.ErrorIs(t, err, ErrNoArtifacts)
}

func TestBuild_ExemptWidgetsPassThrough(t *testing.T) {
	sources := []artifact.Source{{Path: "home.pmd", Kind: artifact.KindPage, Text: homePage}}

	pc, err := Build(context.Background(), sources, Options{
		Structure: structure.Options{ExemptWidgetTypes: []string{"text"}},
	})
	require.NoError(t, err)

	model := pc.File("home.pmd").Model
	require.NotNil(t, model)
	require.Len(t, model.Widgets, 2)
	assert.False(t, model.Widgets[0].IDExempt)
	assert.True(t, model.Widgets[1].IDExempt)
}

func TestBuild_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Build(ctx, []artifact.Source{{Path: "a.script", Text: "var a = 1;"}}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

// cancelAfter is a context that reports cancellation once Err has been
// called more than n times.
type cancelAfter struct {
	context.Context
	n     int32
	calls int32
}

func (c *cancelAfter) Err() error {
	if atomic.AddInt32(&c.calls, 1) > c.n {
		return context.Canceled
	}
	return nil
}

func TestBuild_CancelledMidwayKeepsParsedFiles(t *testing.T) {
	ctx := &cancelAfter{Context: context.Background(), n: 1}
	sources := []artifact.Source{
		{Path: "a.script", Text: "var a = 1;"},
		{Path: "b.script", Text: "var b = 2;"},
		{Path: "c.script", Text: "var c = 3;"},
	}

	pc, err := Build(ctx, sources, Options{Workers: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.script"}, pc.Paths())
	assert.Equal(t, []string{
		"b.script: not parsed: context canceled",
		"c.script: not parsed: context canceled",
	}, pc.Warnings[:2])
}

func TestBuild_UnparsedKindCountsAsMissing(t *testing.T) {
	sources := []artifact.Source{
		{Path: "site.smd", Kind: artifact.KindSiteMetadata, Text: `{ "errorPageConfigurations": [`},
		{Path: "app.amd", Kind: artifact.KindAppMetadata, Text: `{ "applicationId": "app_abc" }`},
	}

	pc, err := Build(context.Background(), sources, Options{})
	require.NoError(t, err)

	assert.False(t, pc.Has(artifact.KindSiteMetadata))
	assert.True(t, pc.IsUnparsed(artifact.KindSiteMetadata))
	assert.True(t, pc.Has(artifact.KindAppMetadata))
	assert.False(t, pc.IsUnparsed(artifact.KindAppMetadata))
	assert.Equal(t, []artifact.Kind{artifact.KindSiteMetadata}, pc.FilesMissing)
	assert.Contains(t, pc.Warnings, "SiteMetadata file could not be parsed; treated as missing")
	assert.Empty(t, pc.ErrorPageIDs)
}
