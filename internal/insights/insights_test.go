package insights

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"attendx/internal/model"
)

var sampleStats = []model.StudentStats{
	{MatricNo: "ENG/21/0001", Name: "Ada", SessionsAttended: 3, TotalSessions: 4, Percentage: 75, Eligible: true},
	{MatricNo: "ENG/21/0002", Name: "Bayo", SessionsAttended: 1, TotalSessions: 4, Percentage: 25},
}

func TestSummarizeMissingKey(t *testing.T) {
	c := New("http://unused", "")
	if got := c.Summarize(context.Background(), sampleStats); got != MsgMissingKey {
		t.Errorf("Summarize() = %q, want %q", got, MsgMissingKey)
	}
}

func TestSummarizeSoftFails(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "service text",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"text":"2 of 3 students meet the 75% requirement."}`))
			},
			want: "2 of 3 students meet the 75% requirement.",
		},
		{
			name: "empty output",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"text":""}`))
			},
			want: MsgNoInsights,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			want: MsgServiceErr,
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
			want: MsgServiceErr,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			c := New(srv.URL, "test-key")
			if got := c.Summarize(context.Background(), sampleStats); got != tt.want {
				t.Errorf("Summarize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSummarizeUnreachableService(t *testing.T) {
	c := New("http://127.0.0.1:1", "test-key")
	if got := c.Summarize(context.Background(), sampleStats); got != MsgServiceErr {
		t.Errorf("Summarize() = %q, want %q", got, MsgServiceErr)
	}
}
