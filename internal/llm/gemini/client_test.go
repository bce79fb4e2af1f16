package gemini

import (
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/contract-analyzer/internal/llm"
)

func TestClassify(t *testing.T) {
	assert.True(t, llm.IsPermanent(classify(status.Error(codes.PermissionDenied, "bad key"))))
	assert.True(t, llm.IsPermanent(classify(&genai.BlockedError{})))
	assert.False(t, llm.IsPermanent(classify(status.Error(codes.ResourceExhausted, "quota"))))
	assert.False(t, llm.IsPermanent(classify(errors.New("connection reset"))))
}

func TestExtractText(t *testing.T) {
	_, err := extractText(&genai.GenerateContentResponse{})
	require.Error(t, err)

	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"summary":`), genai.Text(`"x"}`)}},
	}}}
	got, err := extractText(resp)
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"x"}`, got)
}
