package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanWatch(t *testing.T) {
	root := t.TempDir()
	original, err := os.ReadFile(filepath.Join("testdata", "app", "home.pmd"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "home.pmd"), original, 0o644))

	s := newTestScan(t)
	s.Root = root
	s.NoStore = true

	reports := make(chan *Report, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, 50*time.Millisecond, func(r *Report, err error) {
			assert.NoError(t, err)
			reports <- r
		})
	}()

	select {
	case r := <-reports:
		assert.Len(t, r.Findings, 4)
	case <-time.After(10 * time.Second):
		t.Fatal("no initial report")
	}

	fixed := `{
  "id": "home",
  "securityDomains": ["Worker Data"],
  "presentation": {
    "body": {
      "type": "section",
      "id": "mainSection",
      "children": [
        { "type": "text", "id": "hello", "value": "Hello" }
      ]
    }
  }
}
`
	require.NoError(t, os.WriteFile(filepath.Join(root, "home.pmd"), []byte(fixed), 0o644))

	// A partially written file may be scanned first; wait for the settled one.
	deadline := time.After(10 * time.Second)
	for settled := false; !settled; {
		select {
		case r := <-reports:
			if len(r.Findings) == 0 {
				assert.Equal(t, ExitClean, r.ExitCode)
				settled = true
			}
		case <-deadline:
			t.Fatal("no clean report after change")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
