package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDiff = `diff --git a/pages/home.pmd b/pages/home.pmd
index 1111111..2222222 100644
--- a/pages/home.pmd
+++ b/pages/home.pmd
@@ -3 +3 @@
-  "id": "home",
+  "id": "homePage",
@@ -10,0 +11,2 @@
+  "title": "Home",
+  "securityDomains": ["Workers"],
@@ -20,3 +22,0 @@
-  "a": 1,
-  "b": 2,
-  "c": 3,
diff --git a/scripts/util.script b/scripts/util.script
deleted file mode 100644
index 3333333..0000000
--- a/scripts/util.script
+++ /dev/null
@@ -1,2 +0,0 @@
-var a = 1;
-var b = 2;
diff --git a/site.smd b/site.smd
new file mode 100644
index 0000000..4444444
--- /dev/null
+++ b/site.smd
@@ -0,0 +1,3 @@
+{
+  "id": "site"
+}
`

func TestParseDiff(t *testing.T) {
	changes, err := parseDiff([]byte(sampleDiff))
	require.NoError(t, err)
	require.Len(t, changes, 3)

	assert.Equal(t, ChangedFile{Path: "pages/home.pmd", ChangedLines: []int{3, 11, 12}}, changes[0])

	assert.Equal(t, "scripts/util.script", changes[1].Path)
	assert.True(t, changes[1].Deleted)
	assert.Empty(t, changes[1].ChangedLines)

	assert.Equal(t, "site.smd", changes[2].Path)
	assert.False(t, changes[2].Deleted)
	assert.Equal(t, []int{1, 2, 3}, changes[2].ChangedLines)
}

func TestParseDiffEmpty(t *testing.T) {
	changes, err := parseDiff(nil)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestParseDiffMalformedHunk(t *testing.T) {
	_, err := parseDiff([]byte("diff --git a/x.pmd b/x.pmd\n@@ garbage @@\n"))
	assert.Error(t, err)
}
