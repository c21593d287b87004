package enola

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func executionsHandler(t *testing.T, totalRows int, captured *[]map[string]any) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var query map[string]any
		if err := json.Unmarshal(body, &query); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "bad body"})
			return
		}
		if captured != nil {
			*captured = append(*captured, query)
		}

		limit := int(query["limit"].(float64))
		page := int(query["pageNumber"].(float64))
		offset := (page - 1) * limit

		var data []map[string]any
		for i := offset; i < totalRows && len(data) < limit; i++ {
			data = append(data, map[string]any{
				"agentExecId":   fmt.Sprintf("exec-%d", i),
				"agentDeployId": "deploy-42",
				"agentExecName": "run",
			})
		}
		if data == nil {
			data = []map[string]any{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"data":         data,
			"isSuccessful": true,
		})
	}
}

func testQuery() ExecutionQuery {
	return ExecutionQuery{
		DateFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		Limit:    100,
	}
}

func TestGetExecutionsPagination(t *testing.T) {
	var queries []map[string]any
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/executions/query": executionsHandler(t, 237, &queries),
	})
	defer srv.Close()

	g, err := NewGetExecutions(GetExecutionsConfig{Token: testToken(t, srv.URL, nil)})
	if err != nil {
		t.Fatalf("NewGetExecutions failed: %v", err)
	}

	page, err := g.Query(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(page.Data) != 100 {
		t.Fatalf("expected 100 rows, got %d", len(page.Data))
	}
	if !g.HasMore() {
		t.Fatal("expected more pages after a full page")
	}
	if page.Data[0].ExecutionID != "exec-0" {
		t.Errorf("unexpected first row: %q", page.Data[0].ExecutionID)
	}

	page2, err := g.NextPage(context.Background())
	if err != nil {
		t.Fatalf("NextPage failed: %v", err)
	}
	if len(page2.Data) != 100 {
		t.Fatalf("expected 100 rows on page 2, got %d", len(page2.Data))
	}

	page3, err := g.NextPage(context.Background())
	if err != nil {
		t.Fatalf("NextPage failed: %v", err)
	}
	if len(page3.Data) != 37 {
		t.Fatalf("expected 37 rows on page 3, got %d", len(page3.Data))
	}
	if g.HasMore() {
		t.Error("short page should end the iteration")
	}
	if g.RowsFetched() != 237 {
		t.Errorf("expected 237 accumulated rows, got %d", g.RowsFetched())
	}

	if _, err := g.NextPage(context.Background()); err == nil {
		t.Fatal("expected error after the last page")
	}

	// Page numbers start at 1 and increment per request.
	if queries[0]["pageNumber"] != float64(1) || queries[2]["pageNumber"] != float64(3) {
		t.Errorf("unexpected page numbers: %v %v", queries[0]["pageNumber"], queries[2]["pageNumber"])
	}
	// The deploy-scoped token gets its deploy id injected.
	deployList := queries[0]["agentDeployIdList"].([]any)
	if len(deployList) != 1 || deployList[0] != "deploy-42" {
		t.Errorf("expected injected deploy id, got %v", deployList)
	}
}

func TestGetExecutionsExactMultipleCostsExtraPage(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/executions/query": executionsHandler(t, 200, nil),
	})
	defer srv.Close()

	g, err := NewGetExecutions(GetExecutionsConfig{Token: testToken(t, srv.URL, nil)})
	if err != nil {
		t.Fatalf("NewGetExecutions failed: %v", err)
	}

	if _, err := g.Query(context.Background(), testQuery()); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if _, err := g.NextPage(context.Background()); err != nil {
		t.Fatalf("NextPage failed: %v", err)
	}
	// 200 rows at limit 100: the second page is full, so a third,
	// empty fetch is needed to learn the set is exhausted.
	if !g.HasMore() {
		t.Fatal("expected hasMore after a full second page")
	}
	page3, err := g.NextPage(context.Background())
	if err != nil {
		t.Fatalf("NextPage failed: %v", err)
	}
	if len(page3.Data) != 0 {
		t.Fatalf("expected empty page, got %d rows", len(page3.Data))
	}
	if g.HasMore() {
		t.Error("empty page should end the iteration")
	}
}

func TestGetExecutionsDeployScoping(t *testing.T) {
	token := testToken(t, "https://api.example.com", nil)
	g, err := NewGetExecutions(GetExecutionsConfig{Token: token})
	if err != nil {
		t.Fatalf("NewGetExecutions failed: %v", err)
	}

	q := testQuery()
	q.AgentDeployIDs = []string{"someone-elses-deploy"}
	if _, err := g.Query(context.Background(), q); !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}

	q.AgentDeployIDs = []string{"deploy-42", "deploy-43"}
	if _, err := g.Query(context.Background(), q); !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized error for multiple deploys, got %v", err)
	}
}

func TestGetExecutionsRequiresScope(t *testing.T) {
	// A token without a deploy binding must name at least one scope.
	token := testToken(t, "https://api.example.com", func(c jwt.MapClaims) {
		c["isServiceAccount"] = false
		delete(c, "agentDeployId")
	})
	g, err := NewGetExecutions(GetExecutionsConfig{Token: token})
	if err != nil {
		t.Fatalf("NewGetExecutions failed: %v", err)
	}

	_, err = g.Query(context.Background(), testQuery())
	var confErr *ConfigurationError
	if !errors.As(err, &confErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestGetExecutionsCapabilityCheck(t *testing.T) {
	token := testToken(t, "https://api.example.com", func(c jwt.MapClaims) {
		c["canGetExecutions"] = false
	})

	_, err := NewGetExecutions(GetExecutionsConfig{Token: token})
	if !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestGetExecutionsNextPageWithoutQuery(t *testing.T) {
	g, err := NewGetExecutions(GetExecutionsConfig{
		Token: testToken(t, "https://api.example.com", nil),
	})
	if err != nil {
		t.Fatalf("NewGetExecutions failed: %v", err)
	}

	if _, err := g.NextPage(context.Background()); err == nil {
		t.Fatal("expected error without an active query")
	}
}
