package api

import (
	"net/http"
	"testing"
)

func TestIntakeDialogueCreatesCompanion(t *testing.T) {
	ts := testServer(t, echoClient{})

	resp, body := doJSON(t, "POST", ts.URL+"/v1/users/alice/intake", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	if body["state"] != "name" || body["question"] == "" {
		t.Fatalf("start = %v", body)
	}

	answers := []string{"Nova", "26", "female", "astronomy", "artist", "tall", "single", "kind"}
	for n, a := range answers {
		resp, body = doJSON(t, "POST", ts.URL+"/v1/users/alice/intake/answers",
			map[string]string{"text": a})
		last := n == len(answers)-1
		if last {
			if resp.StatusCode != http.StatusCreated {
				t.Fatalf("final answer status = %d, body = %v", resp.StatusCode, body)
			}
		} else if resp.StatusCode != http.StatusOK {
			t.Fatalf("answer %d status = %d, body = %v", n, resp.StatusCode, body)
		}
	}

	if body["checkpoint_id"] == "" {
		t.Errorf("missing checkpoint_id: %v", body)
	}

	_, listBody := doJSON(t, "GET", ts.URL+"/v1/users/alice/companions", nil)
	if len(listBody["companions"].([]any)) != 1 {
		t.Error("companion not created")
	}
}

func TestIntakeRejectsBadAnswerAndKeepsState(t *testing.T) {
	ts := testServer(t, echoClient{})

	doJSON(t, "POST", ts.URL+"/v1/users/alice/intake", nil)
	doJSON(t, "POST", ts.URL+"/v1/users/alice/intake/answers", map[string]string{"text": "Nova"})

	resp, body := doJSON(t, "POST", ts.URL+"/v1/users/alice/intake/answers",
		map[string]string{"text": "old enough"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body["state"] != "age" {
		t.Errorf("state = %v, want age retry", body["state"])
	}

	resp, body = doJSON(t, "POST", ts.URL+"/v1/users/alice/intake/answers",
		map[string]string{"text": "26"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("retry status = %d", resp.StatusCode)
	}
	if body["state"] != "gender" {
		t.Errorf("state = %v, want gender", body["state"])
	}
}

func TestIntakeAnswerWithoutSession(t *testing.T) {
	ts := testServer(t, echoClient{})

	resp, _ := doJSON(t, "POST", ts.URL+"/v1/users/alice/intake/answers",
		map[string]string{"text": "Nova"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
