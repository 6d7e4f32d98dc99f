package statusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"hopper/internal/progress"
)

func startServer(t *testing.T, tracker *progress.Tracker) *Server {
	t.Helper()
	srv := New("127.0.0.1:0", tracker, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("start status server: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestStatusReflectsTracker(t *testing.T) {
	tracker := progress.NewTracker(nil)
	tracker.Register(1, "transcode")
	tracker.Start(1)
	srv := startServer(t, tracker)

	var snap progress.Snapshot
	if code := getJSON(t, fmt.Sprintf("http://%s/status", srv.Addr()), &snap); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if snap.RunningJobs != 1 || snap.TotalJobs != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestHealth(t *testing.T) {
	srv := startServer(t, progress.NewTracker(nil))

	var body map[string]string
	if code := getJSON(t, fmt.Sprintf("http://%s/health", srv.Addr()), &body); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestResetZeroesCounts(t *testing.T) {
	tracker := progress.NewTracker(nil)
	tracker.Register(1, "transcode")
	tracker.Complete(1)
	srv := startServer(t, tracker)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Post(fmt.Sprintf("http://%s/reset", srv.Addr()), "application/json", nil)
	if err != nil {
		t.Fatalf("POST /reset: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d", resp.StatusCode)
	}

	var snap progress.Snapshot
	getJSON(t, fmt.Sprintf("http://%s/status", srv.Addr()), &snap)
	if snap.TotalJobs != 0 {
		t.Fatalf("reset must zero counts: %+v", snap)
	}
}

func TestResetRejectsGet(t *testing.T) {
	srv := startServer(t, progress.NewTracker(nil))
	if code := getJSON(t, fmt.Sprintf("http://%s/reset", srv.Addr()), nil); code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /reset status = %d, want 405", code)
	}
}
