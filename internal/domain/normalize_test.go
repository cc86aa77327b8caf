package domain

import (
	"encoding/json"
	"testing"
)

func TestNormalizePayloadAliases(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[string]any
	}{
		{
			name: "legacy dash alias",
			in:   `{"correct-answer-idx": 2, "prompt": "2+2?"}`,
			want: map[string]any{"correct_answer_index": float64(2), "prompt": "2+2?"},
		},
		{
			name: "legacy camel alias",
			in:   `{"correctAnswerIdx": 1}`,
			want: map[string]any{"correct_answer_index": float64(1)},
		},
		{
			name: "canonical already present wins",
			in:   `{"correct_answer_index": 3, "correct-answer-idx": 9}`,
			want: map[string]any{"correct_answer_index": float64(3), "correct-answer-idx": float64(9)},
		},
		{
			name: "no known aliases",
			in:   `{"foo": "bar"}`,
			want: map[string]any{"foo": "bar"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizePayload(json.RawMessage(tt.in))
			var gotMap map[string]any
			if err := json.Unmarshal(got, &gotMap); err != nil {
				t.Fatalf("unmarshal normalized payload: %v", err)
			}
			for k, v := range tt.want {
				if gotMap[k] != v {
					t.Errorf("field %q = %v, want %v", k, gotMap[k], v)
				}
			}
		})
	}
}

func TestNormalizePayloadNonObject(t *testing.T) {
	raw := json.RawMessage(`[1,2,3]`)
	got := NormalizePayload(raw)
	if string(got) != string(raw) {
		t.Fatalf("non-object payload should pass through unchanged, got %s", got)
	}
}

func TestNormalizePayloadEmpty(t *testing.T) {
	if got := NormalizePayload(nil); got != nil {
		t.Fatalf("nil payload should stay nil, got %v", got)
	}
}
