package manus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignatureRoundTrip(t *testing.T) {
	body := []byte(`{"task_id":"t-1","event_type":"task_stopped"}`)

	sig := Signature(body, "secret")
	assert.True(t, VerifySignature(body, "secret", sig))
	assert.False(t, VerifySignature(body, "secret", sig+"00"))
	assert.False(t, VerifySignature(body, "other-secret", sig))
	assert.False(t, VerifySignature([]byte(`{}`), "secret", sig))
}

func TestParseSlidesStructured(t *testing.T) {
	result := json.RawMessage(`{"slides":[
		{"title":"Intro","content":{"bullets":["a","b"]}},
		{"title":"Site plan","image_url":"https://x/1.png"},
		{}
	]}`)

	slides, err := ParseSlides(result)
	require.NoError(t, err)
	require.Len(t, slides, 3)
	assert.Equal(t, "Intro", slides[0].Title)
	assert.Equal(t, "https://x/1.png", slides[1].ImageURL)
	assert.Equal(t, "Slide 3", slides[2].Title)
	assert.Equal(t, 2, slides[2].Position)
}

func TestParseSlidesDoubleEncoded(t *testing.T) {
	inner := `[{"title":"One"},{"title":"Two"}]`
	result, err := json.Marshal(map[string]string{"slides": inner})
	require.NoError(t, err)

	slides, err := ParseSlides(result)
	require.NoError(t, err)
	require.Len(t, slides, 2)
	assert.Equal(t, "Two", slides[1].Title)
}

func TestParseSlidesFailures(t *testing.T) {
	cases := map[string]string{
		"empty result":  "",
		"no slides key": `{"something":"else"}`,
		"bad json":      `{"slides": not-json}`,
		"empty array":   `{"slides":[]}`,
	}
	for name, payload := range cases {
		_, err := ParseSlides(json.RawMessage(payload))
		assert.Error(t, err, name)
	}
}

func TestCreateTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tasks", r.URL.Path)
		assert.Equal(t, "Bearer key-123", r.Header.Get("Authorization"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "slides", req["task_type"])

		json.NewEncoder(w).Encode(map[string]string{"task_id": "task-99"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key-123")
	taskID, err := c.CreateTask(context.Background(), "make a deck", "https://app/webhook")
	require.NoError(t, err)
	assert.Equal(t, "task-99", taskID)
}

func TestCreateTaskUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key")
	_, err := c.CreateTask(context.Background(), "deck", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestGetTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tasks/task-7", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"event_type":  "task_stopped",
			"stop_reason": "finish",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key")
	event, err := c.GetTask(context.Background(), "task-7")
	require.NoError(t, err)
	assert.Equal(t, "task_stopped", event.EventType)
	assert.Equal(t, "task-7", event.TaskID, "task id filled in when upstream omits it")
}
