package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"thirdcoast.systems/scanwatch/internal/incident"
)

type scriptedChat struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
	last    []Message
}

func (s *scriptedChat) Chat(_ context.Context, _ string, messages []Message, _ int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = messages
	if s.err != nil {
		return "", s.err
	}
	if len(s.replies) == 0 {
		return "", nil
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

func TestClientChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen3:8b", req.Model)
		assert.False(t, req.Stream)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)
		assert.Len(t, req.Messages, 2)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"label\":\"Medical\"}"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIURL: srv.URL + "/v1/", APIKey: "sk-test"})
	out, err := c.Chat(context.Background(), "qwen3:8b", []Message{
		{Role: "system", Content: "s"},
		{Role: "user", Content: "u"},
	}, 0)
	require.NoError(t, err)
	require.Equal(t, `{"label":"Medical"}`, out)

	_, err = c.Chat(context.Background(), "", nil, 0)
	require.Error(t, err)
}

func TestClientChatErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			_, _ = w.Write([]byte(`{"choices":[]}`))
			return
		}
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(Config{APIURL: srv.URL, APIKey: "k"}).Chat(context.Background(), "m", nil, 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "400")

	_, err = NewClient(Config{APIURL: srv.URL}).Chat(context.Background(), "m", nil, 0)
	require.ErrorContains(t, err, "empty choices")
}

func TestParseLabel(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		label string
		ok    bool
	}{
		{"json", `{"label":"Medical"}`, "Medical", true},
		{"reasoning stripped", `<think>maybe {"label":"Hazmat"}</think> {"label":"mva"}`, "Motor Vehicle Accident", true},
		{"unlisted label", `{"label":"Parking Complaint"}`, incident.LabelUnknown, true},
		{"plain text", "The answer is Traffic Stop.", "Traffic Stop", true},
		{"broken json", `{label: Welfare Check}`, "Welfare Check", true},
		{"nothing usable", "no idea", incident.LabelUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, ok := parseLabel(tt.raw)
			require.Equal(t, tt.label, label)
			require.Equal(t, tt.ok, ok)
		})
	}
}

func TestClassifier(t *testing.T) {
	t.Run("first reply", func(t *testing.T) {
		chat := &scriptedChat{replies: []string{`{"label":"Structure Fire"}`}}
		label, err := NewClassifier(chat, "m").Classify(context.Background(), "Working fire at 12 Elm Street")
		require.NoError(t, err)
		require.Equal(t, "Structure Fire", label)
		require.Equal(t, 1, chat.calls)
		require.Contains(t, chat.last[1].Content, "Working fire at 12 Elm Street")
	})

	t.Run("retry once", func(t *testing.T) {
		chat := &scriptedChat{replies: []string{"hmm", `{"label":"Fire Alarm"}`}}
		label, err := NewClassifier(chat, "m").Classify(context.Background(), "CO detector activation")
		require.NoError(t, err)
		require.Equal(t, "Fire Alarm", label)
		require.Equal(t, 2, chat.calls)
	})

	t.Run("settles on unknown", func(t *testing.T) {
		chat := &scriptedChat{replies: []string{"hmm", "still nothing"}}
		label, err := NewClassifier(chat, "m").Classify(context.Background(), "copy")
		require.NoError(t, err)
		require.Equal(t, incident.LabelUnknown, label)
		require.Equal(t, 2, chat.calls)
	})

	t.Run("transport error", func(t *testing.T) {
		chat := &scriptedChat{err: errors.New("connection refused")}
		_, err := NewClassifier(chat, "m").Classify(context.Background(), "x")
		require.Error(t, err)
	})
}

func TestRegexLocation(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"numbered", "Caller reports a fall at 12 Main Street, elderly female conscious", "12 Main Street"},
		{"numbered with unit", "Caller says suspect ran into 125 Commonwealth Ave Apt 3B, door was propped open.", "125 Commonwealth Ave Apt 3B"},
		{"numbered mid sentence", "Newton Wellesley, 2014 Washington Street by the emergency room exit.", "2014 Washington Street"},
		{"intersection", "Crash, Beacon St and Centre St, no entrapment reported", "Beacon St & Centre St"},
		{"highway", "Vehicle stopped on I-95 SB by exit 21, hazard lights on", "I-95 SB by exit 21"},
		{"street only", "Units responding to Tremont Street for a suspicious person", "Tremont Street"},
		{"named area", "Loud party in the Harvard Square area, caller can meet outside", "Harvard Square area"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RegexLocation(tt.text)
			require.True(t, ok)
			require.Equal(t, tt.want, got)
		})
	}

	_, ok := RegexLocation("We're clear of the hospital and available in the city.")
	require.False(t, ok)
}

func TestParseAddress(t *testing.T) {
	require.Equal(t, "the old mill", parseAddress(`<think>look</think>{"address":"the old mill"}`))
	require.Equal(t, "", parseAddress(`{"address":"NONE"}`))
	require.Equal(t, "", parseAddress(`{"address":"  "}`))
	require.Equal(t, "behind the library", parseAddress(`Sure: "address": "behind the library"`))
	require.Equal(t, "", parseAddress("nothing here"))
}

func TestExtractor(t *testing.T) {
	t.Run("short transcript", func(t *testing.T) {
		chat := &scriptedChat{}
		got, err := NewExtractor(chat, "m").Extract(context.Background(), "Copy, 12 Main Street")
		require.NoError(t, err)
		require.Empty(t, got)
		require.Zero(t, chat.calls)
	})

	t.Run("regex wins", func(t *testing.T) {
		chat := &scriptedChat{}
		got, err := NewExtractor(chat, "m").Extract(context.Background(), "Engine 3 respond to 40 Walnut Street for smoke")
		require.NoError(t, err)
		require.Equal(t, "40 Walnut Street", got)
		require.Zero(t, chat.calls)
	})

	t.Run("llm fallback", func(t *testing.T) {
		chat := &scriptedChat{replies: []string{`{"address":"the old mill behind the library"}`}}
		got, err := NewExtractor(chat, "m").Extract(context.Background(), "respond to the old mill behind the library for a fire")
		require.NoError(t, err)
		require.Equal(t, "the old mill behind the library", got)
		require.Equal(t, 1, chat.calls)
		require.Equal(t, "system", chat.last[0].Role)
		require.Equal(t, "respond to the old mill behind the library for a fire", chat.last[len(chat.last)-1].Content)
	})

	t.Run("llm none", func(t *testing.T) {
		chat := &scriptedChat{replies: []string{`{"address":"NONE"}`}}
		got, err := NewExtractor(chat, "m").Extract(context.Background(), "we are back in service and available")
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("llm error", func(t *testing.T) {
		chat := &scriptedChat{err: errors.New("timeout")}
		_, err := NewExtractor(chat, "m").Extract(context.Background(), "we are back in service and available")
		require.Error(t, err)
	})
}
