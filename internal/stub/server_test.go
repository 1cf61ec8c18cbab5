//go:build !integration

package stub

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"runpod-probe/internal/config"
	"runpod-probe/internal/domain/model"

	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T, cfg config.StubConfig) *httptest.Server {
	t.Helper()
	l := zerolog.Nop()
	ts := httptest.NewServer(NewServer(cfg, &l).Routes())
	t.Cleanup(ts.Close)
	return ts
}

func submitJob(t *testing.T, ts *httptest.Server, token, image string) model.SubmitResponse {
	t.Helper()
	body, _ := json.Marshal(model.SubmitRequest{Input: model.JobInput{Image: image, Prompt: "p"}})
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v2/local/run", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("run returned %d", resp.StatusCode)
	}
	var sr model.SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		t.Fatal(err)
	}
	return sr
}

func fetchStatus(t *testing.T, ts *httptest.Server, token, jobID string) model.StatusResponse {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v2/local/status/"+jobID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status returned %d", resp.StatusCode)
	}
	var st model.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, config.StubConfig{APIKey: "right-key", FinalStatus: "COMPLETED"})

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v2/local/run", bytes.NewReader([]byte(`{}`)))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status %d, want 401", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodPost, ts.URL+"/v2/local/run", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Authorization", "Bearer wrong-key")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token: status %d, want 401", resp.StatusCode)
	}
}

func TestRunRejectsEmptyImage(t *testing.T) {
	ts := newTestServer(t, config.StubConfig{FinalStatus: "COMPLETED"})

	body := []byte(`{"input":{"prompt":"no image"}}`)
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v2/local/run", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer anything")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status %d, want 400", resp.StatusCode)
	}
}

func TestImmediateCompletionEchoesImage(t *testing.T) {
	ts := newTestServer(t, config.StubConfig{FinalStatus: "COMPLETED"})

	sr := submitJob(t, ts, "anything", "aW1hZ2U=")
	if sr.ID == "" {
		t.Fatal("no job id assigned")
	}
	if sr.Status != model.JobStatusInQueue {
		t.Errorf("submit status = %s, want IN_QUEUE", sr.Status)
	}

	st := fetchStatus(t, ts, "anything", sr.ID)
	if st.Status != model.JobStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", st.Status)
	}
	if st.Output == nil || st.Output.ImageBase64 != "aW1hZ2U=" {
		t.Errorf("output = %+v, want submitted image echoed back", st.Output)
	}
}

func TestStatusSchedule(t *testing.T) {
	ts := newTestServer(t, config.StubConfig{
		QueueDelay:  150 * time.Millisecond,
		RunDelay:    time.Hour,
		FinalStatus: "COMPLETED",
	})

	sr := submitJob(t, ts, "anything", "aW1hZ2U=")
	if st := fetchStatus(t, ts, "anything", sr.ID); st.Status != model.JobStatusInQueue {
		t.Errorf("fresh job status = %s, want IN_QUEUE", st.Status)
	}

	time.Sleep(300 * time.Millisecond)
	if st := fetchStatus(t, ts, "anything", sr.ID); st.Status != model.JobStatusInProgress {
		t.Errorf("aged job status = %s, want IN_PROGRESS", st.Status)
	}
}

func TestForcedTerminalStates(t *testing.T) {
	ts := newTestServer(t, config.StubConfig{FinalStatus: "FAILED"})
	sr := submitJob(t, ts, "anything", "aW1hZ2U=")
	st := fetchStatus(t, ts, "anything", sr.ID)
	if st.Status != model.JobStatusFailed {
		t.Fatalf("status = %s, want FAILED", st.Status)
	}
	if st.Error == "" {
		t.Error("failed status should carry an error message")
	}

	ts2 := newTestServer(t, config.StubConfig{FinalStatus: "CANCELLED"})
	sr2 := submitJob(t, ts2, "anything", "aW1hZ2U=")
	if st := fetchStatus(t, ts2, "anything", sr2.ID); st.Status != model.JobStatusCancelled {
		t.Errorf("status = %s, want CANCELLED", st.Status)
	}
}

func TestUnknownJobIs404(t *testing.T) {
	ts := newTestServer(t, config.StubConfig{FinalStatus: "COMPLETED"})

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v2/local/status/no-such-job", nil)
	req.Header.Set("Authorization", "Bearer anything")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status %d, want 404", resp.StatusCode)
	}
}
