package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognivia/exam-engine/internal/model"
)

func TestFetchAttemptMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/attempts/metadata", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("test_id"))
		assert.Equal(t, "42", r.URL.Query().Get("user_id"))
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))

		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"attempt_id":            9001,
				"test_time_box_minutes": 90,
				"started_at":            time.Now().UTC().Format(time.RFC3339),
				"sections": []map[string]any{
					{"section_id": 1, "section_name": "Aptitude", "time_box_minutes": 30, "question_ids": []int64{101, 102}},
					{"section_id": 2, "section_name": "Reasoning", "question_ids": []int64{201}},
				},
			},
		})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "secret", 5*time.Second)
	meta, err := client.FetchAttemptMetadata(context.Background(), 7, 42)
	require.NoError(t, err)

	assert.Equal(t, int64(9001), meta.AttemptID)
	assert.Equal(t, 90, meta.TestTimeBoxMinutes)
	require.Len(t, meta.Sections, 2)
	assert.Equal(t, []int64{101, 102}, meta.Sections[0].QuestionIDs)
	assert.Equal(t, 0, meta.Sections[1].TimeBoxMinutes)
}

func TestFetchQuestionNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": "NOT_FOUND", "message": "no such question"}})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "", 5*time.Second)
	_, err := client.FetchQuestion(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitAnswerSendsCanonicalBody(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/attempts/9001/answers", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"saved": true}})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "", 5*time.Second)
	err := client.SubmitAnswer(context.Background(), 9001, 101, `["B"]`, model.StatusAttempted)
	require.NoError(t, err)

	assert.Equal(t, float64(101), got["question_id"])
	assert.Equal(t, `["B"]`, got["raw"])
	assert.Equal(t, "ATTEMPTED", got["status"])
}

func TestEndAttemptRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": "ALREADY_ENDED", "message": "attempt already ended"}})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "", 5*time.Second)
	err := client.EndAttempt(context.Background(), 9001, 42)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "attempt already ended")
}

func TestServerErrorSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "", 5*time.Second)
	err := client.EndAttempt(context.Background(), 9001, 42)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
}
