package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStatus_CanTransition(t *testing.T) {
	cases := []struct {
		from, to TaskStatus
		ok       bool
	}{
		{"", StatusPending, true},
		{"", StatusInProgress, false},
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusFailed, true},
		{StatusInProgress, StatusInProgress, true},
		{StatusInProgress, StatusSuccess, true},
		{StatusInProgress, StatusFailed, true},
		{StatusInProgress, StatusPending, false},
		{StatusSuccess, StatusFailed, false},
		{StatusFailed, StatusInProgress, false},
		{StatusSuccess, StatusSuccess, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, c.from.CanTransition(c.to), "%q -> %q", c.from, c.to)
	}
}

func TestEvaluationPayload_JSON(t *testing.T) {
	req := ProjectRequest{Email: "a@b.c", Task: "t-1", Round: 2, Nonce: "n"}
	p := NewEvaluationPayload(req.Identity(), "https://github.com/o/r", "abc", "https://o.github.io/r/")

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, map[string]any{
		"email":      "a@b.c",
		"task":       "t-1",
		"round":      float64(2),
		"nonce":      "n",
		"repo_url":   "https://github.com/o/r",
		"commit_sha": "abc",
		"pages_url":  "https://o.github.io/r/",
	}, got)
}
