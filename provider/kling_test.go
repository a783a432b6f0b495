package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKlingClient_Submit(t *testing.T) {
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/videos/text2video", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{"task_id": "v-1", "task_status": "submitted"},
		})
	}))
	defer server.Close()

	client := NewKlingClient(server.URL, "secret")
	taskID, err := client.Submit(ctx, &Request{Prompt: "a fox running through snow"})

	require.NoError(t, err)
	assert.Equal(t, "v-1", taskID)
}

func TestKlingClient_GetStatus(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name string
		data map[string]any
		want TaskStatus
	}{
		{
			name: "submitted",
			data: map[string]any{"task_id": "v-1", "task_status": "submitted"},
			want: TaskStatus{State: StatePending},
		},
		{
			name: "processing",
			data: map[string]any{"task_id": "v-1", "task_status": "processing"},
			want: TaskStatus{State: StateProcessing},
		},
		{
			name: "succeed with video",
			data: map[string]any{
				"task_id":     "v-1",
				"task_status": "succeed",
				"task_result": map[string]any{
					"videos": []map[string]any{{"url": "https://cdn.example.com/out.mp4"}},
				},
			},
			want: TaskStatus{State: StateCompleted, ResultURI: "https://cdn.example.com/out.mp4"},
		},
		{
			name: "failed",
			data: map[string]any{
				"task_id":         "v-1",
				"task_status":     "failed",
				"task_status_msg": "prompt rejected",
			},
			want: TaskStatus{State: StateFailed, ErrorMessage: "prompt rejected"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/videos/text2video/v-1", r.URL.Path)
				json.NewEncoder(w).Encode(map[string]any{"code": 0, "data": tc.data})
			}))
			defer server.Close()

			client := NewKlingClient(server.URL, "secret")
			status, err := client.GetStatus(ctx, "v-1")

			require.NoError(t, err)
			assert.Equal(t, tc.want, *status)
		})
	}

	t.Run("api error code surfaces", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"code": 1100, "message": "account in arrears"})
		}))
		defer server.Close()

		client := NewKlingClient(server.URL, "secret")
		_, err := client.GetStatus(ctx, "v-1")

		assert.Error(t, err)
	})
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	flux := NewFluxClient("http://flux.local", "k")
	turbo := NewTurboClient("http://turbo.local", "k")
	kling := NewKlingClient("http://kling.local", "k")

	registry.Register("image", flux, turbo)
	registry.Register("video", kling)

	t.Run("chain order preserved", func(t *testing.T) {
		chain, err := registry.ChainFor("image")
		require.NoError(t, err)
		require.Len(t, chain, 2)
		assert.Equal(t, "flux", chain[0].Name())
		assert.Equal(t, "turbo", chain[1].Name())
	})

	t.Run("unknown kind rejected", func(t *testing.T) {
		_, err := registry.ChainFor("audio")
		assert.Error(t, err)
	})

	t.Run("lookup by name", func(t *testing.T) {
		client, err := registry.ByName("kling")
		require.NoError(t, err)
		assert.Equal(t, "kling", client.Name())

		_, err = registry.ByName("ghost")
		assert.Error(t, err)
	})
}
