// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bcem/intake/internal/models"
)

func runCLI(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--server", srv.URL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestReviewCmd(t *testing.T) {
	var got models.ReviewAction
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/items/abc/review" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(models.ReviewResult{OK: true, Status: models.StatusRejected})
	}))
	defer srv.Close()

	out, err := runCLI(t, srv, "review", "abc", "--reviewer", "ops", "--action", "reject", "--reason", "spam")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if got.Reviewer != "ops" || got.Action != models.ActionReject || got.Reason != "spam" {
		t.Errorf("sent = %+v", got)
	}
	if !strings.Contains(out, `"status": "rejected"`) {
		t.Errorf("output = %s", out)
	}
}

func TestReviewCmd_InvalidAction(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	if _, err := runCLI(t, srv, "review", "abc", "--reviewer", "ops", "--action", "maybe"); err == nil {
		t.Error("expected validation error")
	}
	if called {
		t.Error("invalid action reached the server")
	}
}

func TestReplayCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg models.InboxMessage
		json.NewDecoder(r.Body).Decode(&msg)
		json.NewEncoder(w).Encode(models.IngestResult{ItemID: "item-" + msg.MessageID, Status: models.StatusApproved, Confidence: 1})
	}))
	defer srv.Close()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.json"), []byte(`{"message_id":"m1"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, srv, "replay", "--rate", "100", dir)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !strings.Contains(out, "==> a.json approved confidence=1.00 item=item-m1") {
		t.Errorf("output = %s", out)
	}
	if !strings.Contains(out, "approved=1 pending=0 failed=0 errors=0") {
		t.Errorf("summary missing: %s", out)
	}
}

func TestItemsCmd_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	if _, err := runCLI(t, srv, "items", "--status", "bogus"); err == nil {
		t.Error("expected error for unknown status")
	}
}
