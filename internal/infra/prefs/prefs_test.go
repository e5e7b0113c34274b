package prefs_test

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/timbell/slimserver/internal/infra/prefs"
)

func openStore(t *testing.T) (*prefs.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "slimserver", "prefs.yaml")
	store, err := prefs.Open(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return store, path
}

func TestOpenMissingFileStartsFresh(t *testing.T) {
	store, _ := openStore(t)

	addrs, err := store.LoadAddresses()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(addrs) != 0 {
		t.Errorf("expected no addresses, got %v", addrs)
	}
	if got := store.Volume("00:04:20:01:02:03"); got != prefs.DefaultVolume {
		t.Errorf("expected default volume %d, got %d", prefs.DefaultVolume, got)
	}
}

func TestOpenCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	if err := os.WriteFile(path, []byte("players: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := prefs.Open(path); err == nil {
		t.Error("expected error for corrupt preferences, got nil")
	}
}

func TestAddressesRoundTrip(t *testing.T) {
	store, path := openStore(t)

	addrs := []string{"10.0.0.5:3483", "10.0.0.9:3483"}
	if err := store.SaveAddresses(addrs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reopened, err := prefs.Open(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := reopened.LoadAddresses()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, addrs) {
		t.Errorf("expected %v, got %v", addrs, got)
	}
}

func TestAddressesStoredCommaJoined(t *testing.T) {
	store, path := openStore(t)

	if err := store.SaveAddresses([]string{"10.0.0.5:3483", "10.0.0.9:3483"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := "players: 10.0.0.5:3483,10.0.0.9:3483"; !strings.Contains(string(data), want) {
		t.Errorf("expected %q in file, got:\n%s", want, data)
	}
}

func TestLoadAddressesSkipsBlankEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	if err := os.WriteFile(path, []byte("players: 10.0.0.5:3483, ,10.0.0.9:3483,\n"), 0644); err != nil {
		t.Fatal(err)
	}

	store, err := prefs.Open(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := store.LoadAddresses()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"10.0.0.5:3483", "10.0.0.9:3483"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestVolumeRoundTrip(t *testing.T) {
	store, path := openStore(t)

	if err := store.SetVolume("00:04:20:01:02:03", 72); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reopened, err := prefs.Open(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := reopened.Volume("00:04:20:01:02:03"); got != 72 {
		t.Errorf("expected volume 72, got %d", got)
	}
	if got := reopened.Volume("00:04:20:0a:0b:0c"); got != prefs.DefaultVolume {
		t.Errorf("expected default volume for unknown player, got %d", got)
	}
}

func TestSetVolumeClamps(t *testing.T) {
	tests := []struct {
		name     string
		volume   int
		expected int
	}{
		{"normal volume", 50, 50},
		{"over max", 150, 100},
		{"under min", -10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := openStore(t)

			if err := store.SetVolume("00:04:20:01:02:03", tt.volume); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := store.Volume("00:04:20:01:02:03"); got != tt.expected {
				t.Errorf("expected volume %d, got %d", tt.expected, got)
			}
		})
	}
}
