package enola

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewEvaluationRejectsWithoutCapability(t *testing.T) {
	token := testToken(t, "https://api.example.com", func(c jwt.MapClaims) {
		c["canEvaluate"] = false
	})

	_, err := NewEvaluation(EvaluationConfig{Token: token})
	if !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestEvaluationGroupsByExecution(t *testing.T) {
	var payloads []map[string]any
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/evaluation": func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			var payload map[string]any
			_ = json.Unmarshal(body, &payload)
			payloads = append(payloads, payload)
			writeJSON(w, http.StatusOK, map[string]any{
				"enolaId":     payload["enolaId"],
				"enolaEvalId": "eval-result-1",
				"successfull": true,
			})
		},
	})
	defer srv.Close()

	eval, err := NewEvaluation(EvaluationConfig{
		Token:    testToken(t, srv.URL, nil),
		EvalType: EvalTypeUser,
		UserID:   "reviewer-1",
	})
	if err != nil {
		t.Fatalf("NewEvaluation failed: %v", err)
	}

	// Two entries for the same execution plus one for another: two groups.
	eval.AddEvaluation("exec-1", "accuracy", 0.9, "good answer")
	eval.AddEvaluationByLevel("exec-1", "tone", 4, "polite")
	eval.AddEvaluation("exec-2", "accuracy", 0.2, "hallucinated")

	result := eval.Execute(context.Background())

	if result.TotalGroups != 2 {
		t.Errorf("expected 2 groups, got %d", result.TotalGroups)
	}
	if result.TotalSuccess != 2 || result.TotalErrors != 0 {
		t.Errorf("unexpected result counts: %+v", result)
	}
	if len(payloads) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(payloads))
	}

	first := payloads[0]
	if first["enolaId"] != "exec-1" {
		t.Errorf("expected exec-1 first, got %v", first["enolaId"])
	}
	if first["evalType"] != "USER" {
		t.Errorf("expected USER eval type, got %v", first["evalType"])
	}
	evals := first["evals"].(map[string]any)
	if len(evals) != 2 {
		t.Fatalf("expected 2 evals in first group, got %d", len(evals))
	}
	accuracy := evals["accuracy"].(map[string]any)
	if accuracy["value"] != 0.9 {
		t.Errorf("expected value 0.9, got %v", accuracy["value"])
	}
	if accuracy["level"] != nil {
		t.Errorf("value-based eval should have nil level, got %v", accuracy["level"])
	}
	tone := evals["tone"].(map[string]any)
	if tone["level"] != float64(4) {
		t.Errorf("expected level 4, got %v", tone["level"])
	}

	sender := first["sender"].(map[string]any)
	if sender["user_id"] != "reviewer-1" {
		t.Errorf("expected sender user id, got %v", sender["user_id"])
	}
}

func TestEvaluationDuplicateEvalIDKeepsFirst(t *testing.T) {
	token := testToken(t, "https://api.example.com", nil)
	eval, err := NewEvaluation(EvaluationConfig{Token: token})
	if err != nil {
		t.Fatalf("NewEvaluation failed: %v", err)
	}

	eval.AddEvaluation("exec-1", "accuracy", 0.9, "first")
	eval.AddEvaluation("exec-1", "accuracy", 0.1, "second")

	g := eval.group("exec-1")
	if len(g.evals) != 1 {
		t.Fatalf("expected 1 eval, got %d", len(g.evals))
	}
	if *g.evals["accuracy"].Value != 0.9 {
		t.Errorf("expected first value to win, got %v", *g.evals["accuracy"].Value)
	}
}

func TestEvaluationContinuesPastFailures(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/evaluation": func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			var payload map[string]any
			_ = json.Unmarshal(body, &payload)
			if payload["enolaId"] == "exec-bad" {
				writeJSON(w, http.StatusOK, map[string]any{
					"successfull": false,
					"message":     "execution not found",
				})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"successfull": true})
		},
	})
	defer srv.Close()

	eval, err := NewEvaluation(EvaluationConfig{Token: testToken(t, srv.URL, nil)})
	if err != nil {
		t.Fatalf("NewEvaluation failed: %v", err)
	}
	eval.AddEvaluation("exec-bad", "accuracy", 0.5, "")
	eval.AddEvaluation("exec-good", "accuracy", 0.5, "")

	result := eval.Execute(context.Background())

	if result.TotalSuccess != 1 || result.TotalErrors != 1 {
		t.Errorf("unexpected result counts: %+v", result)
	}
	if len(result.Errors) != 1 || result.Errors[0] != "execution not found" {
		t.Errorf("unexpected errors: %v", result.Errors)
	}
}

func TestEvaluationResultScorePayload(t *testing.T) {
	var payload map[string]any
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/evaluation": func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &payload)
			writeJSON(w, http.StatusOK, map[string]any{"successfull": true})
		},
	})
	defer srv.Close()

	eval, err := NewEvaluation(EvaluationConfig{
		Token: testToken(t, srv.URL, nil),
		ResultScore: &ResultScore{
			ValueActual: 0.75,
			GroupActual: "B",
			ValueDiff:   -0.05,
		},
	})
	if err != nil {
		t.Fatalf("NewEvaluation failed: %v", err)
	}
	eval.AddEvaluation("exec-1", "accuracy", 0.7, "")
	eval.Execute(context.Background())

	results := payload["results"].(map[string]any)
	if results["scoreValueReal"] != 0.75 {
		t.Errorf("expected actual score, got %v", results["scoreValueReal"])
	}
	if results["scoreGroupReal"] != "B" {
		t.Errorf("expected actual group, got %v", results["scoreGroupReal"])
	}
	if results["scoreValueDif"] != -0.05 {
		t.Errorf("expected score diff, got %v", results["scoreValueDif"])
	}
}
