package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurboClient_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("successful submission", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v2/task", r.URL.Path)
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "a red fox", body["prompt"])
			assert.Equal(t, float64(42), body["seed"])

			json.NewEncoder(w).Encode(map[string]any{
				"code": 0,
				"data": map[string]any{"task_id": "t-9"},
			})
		}))
		defer server.Close()

		client := NewTurboClient(server.URL, "secret")
		taskID, err := client.Submit(ctx, &Request{
			Prompt: "a red fox",
			Params: map[string]any{"seed": 42},
		})

		require.NoError(t, err)
		assert.Equal(t, "t-9", taskID)
	})

	t.Run("envelope error code rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"code": 1002,
				"msg":  "invalid prompt",
			})
		}))
		defer server.Close()

		client := NewTurboClient(server.URL, "secret")
		_, err := client.Submit(ctx, &Request{Prompt: "a red fox"})

		assert.Error(t, err)
		assert.False(t, errors.Is(err, ErrUnavailable))
	})

	t.Run("server error maps to ErrUnavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewTurboClient(server.URL, "secret")
		_, err := client.Submit(ctx, &Request{Prompt: "a red fox"})

		assert.True(t, errors.Is(err, ErrUnavailable))
	})
}

func TestTurboClient_GetStatus(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name string
		data map[string]any
		want TaskStatus
	}{
		{
			name: "waiting",
			data: map[string]any{"state": "waiting"},
			want: TaskStatus{State: StatePending},
		},
		{
			name: "generating",
			data: map[string]any{"state": "generating"},
			want: TaskStatus{State: StateProcessing},
		},
		{
			name: "success",
			data: map[string]any{"state": "success", "output": "https://cdn.example.com/out.png"},
			want: TaskStatus{State: StateCompleted, ResultURI: "https://cdn.example.com/out.png"},
		},
		{
			name: "fail",
			data: map[string]any{"state": "fail", "reason": "nsfw content"},
			want: TaskStatus{State: StateFailed, ErrorMessage: "nsfw content"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v2/task/t-9", r.URL.Path)
				json.NewEncoder(w).Encode(map[string]any{"code": 0, "data": tc.data})
			}))
			defer server.Close()

			client := NewTurboClient(server.URL, "secret")
			status, err := client.GetStatus(ctx, "t-9")

			require.NoError(t, err)
			assert.Equal(t, tc.want, *status)
		})
	}
}
