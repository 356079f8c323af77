package credentials

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchCredentialsNotifiesOnWrite(t *testing.T) {
	dir := t.TempDir()
	notified := make(chan struct{}, 1)

	w, err := WatchCredentials(dir, func() {
		select {
		case notified <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "providers.json"), []byte(`{}`), 0o600))

	select {
	case <-notified:
	case <-time.After(2 * time.Second):
		t.Fatal("onRotate was not called after a credentials file write")
	}
}
