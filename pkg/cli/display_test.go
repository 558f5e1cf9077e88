package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stentorlabs/stentor/pkg/orchestrator"
)

func TestFormatMeta(t *testing.T) {
	tests := []struct {
		name string
		resp *orchestrator.ChatResponse
		want string
	}{
		{
			name: "llm turn",
			resp: &orchestrator.ChatResponse{Strategy: "llm", Provider: "primary", Confidence: 0.91, DurationMS: 840},
			want: "[strategy=llm provider=primary confidence=0.91 840ms]",
		},
		{
			name: "tool turn",
			resp: &orchestrator.ChatResponse{Strategy: "tool", ToolUsed: "calculator", Confidence: 1, DurationMS: 2},
			want: "[strategy=tool tool=calculator confidence=1.00 2ms]",
		},
		{
			name: "agent turn",
			resp: &orchestrator.ChatResponse{Strategy: "agent", AgentUsed: "code_helper", Provider: "primary", Confidence: 0.77, DurationMS: 1031},
			want: "[strategy=agent provider=primary agent=code_helper confidence=0.77 1031ms]",
		},
		{
			name: "rag turn counts hits",
			resp: &orchestrator.ChatResponse{
				Strategy: "rag", Provider: "primary", Confidence: 0.8, DurationMS: 95,
				RAGHits: []orchestrator.RAGHit{{Score: 0.93}, {Score: 0.88}},
			},
			want: "[strategy=rag provider=primary hits=2 confidence=0.80 95ms]",
		},
		{
			name: "command turn",
			resp: &orchestrator.ChatResponse{Strategy: orchestrator.StrategyCommand, Confidence: 1},
			want: "[strategy=command confidence=1.00 0ms]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMeta(tt.resp))
		})
	}
}

func TestFormatErrorInfo(t *testing.T) {
	e := &orchestrator.ErrorInfo{Kind: "timeout", Message: "request exceeded 60000ms"}
	assert.Equal(t, "error (timeout): request exceeded 60000ms", FormatErrorInfo(e))
}
