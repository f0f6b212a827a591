package tokens

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

type memoryBlob struct {
	data    []byte
	saveErr error
	loadErr error
	saveCnt int
	loadCnt int
}

func (m *memoryBlob) Load(ctx context.Context) ([]byte, error) {
	m.loadCnt++
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.data == nil {
		return nil, ErrBlobNotFound
	}
	return m.data, nil
}

func (m *memoryBlob) Save(ctx context.Context, data []byte) error {
	m.saveCnt++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data = append([]byte(nil), data...)
	return nil
}

func testState() State {
	return State{
		SchemaVersion: SchemaVersion,
		Username:      "user@example.com",
		AccessToken:   "access",
		RefreshToken:  "refresh",
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	k, err := NewKeeper(path, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewKeeper: %v", err)
	}

	if err := k.Save(context.Background(), testState()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := k.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != testState() {
		t.Fatalf("state mismatch: %+v", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("state file mode = %o, want 600", perm)
	}
}

func TestLoadMissingStateWithoutBlob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	k, err := NewKeeper(path, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewKeeper: %v", err)
	}

	if _, err := k.Load(context.Background()); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load err = %v, want ErrStateNotFound", err)
	}
}

func TestLoadRestoresFromBlobAndRehydratesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	blob := &memoryBlob{}

	seed, err := NewKeeper(filepath.Join(t.TempDir(), "seed.json"), blob, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewKeeper: %v", err)
	}
	if err := seed.Save(context.Background(), testState()); err != nil {
		t.Fatalf("seed Save: %v", err)
	}

	k, err := NewKeeper(path, blob, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewKeeper: %v", err)
	}
	got, err := k.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != testState() {
		t.Fatalf("state mismatch: %+v", got)
	}

	// The blob restore should leave a local copy behind.
	local, err := LoadState(path)
	if err != nil {
		t.Fatalf("LoadState after restore: %v", err)
	}
	if local != testState() {
		t.Fatalf("rehydrated state mismatch: %+v", local)
	}
}

func TestSaveSucceedsWhenMirrorFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	blob := &memoryBlob{saveErr: errors.New("bucket unavailable")}
	k, err := NewKeeper(path, blob, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewKeeper: %v", err)
	}

	if err := k.Save(context.Background(), testState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if blob.saveCnt != 1 {
		t.Fatalf("blob saves = %d, want 1", blob.saveCnt)
	}
	if _, err := k.Load(context.Background()); err != nil {
		t.Fatalf("Load after mirror failure: %v", err)
	}
}
