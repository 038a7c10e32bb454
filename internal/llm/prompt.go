package llm

import (
	"fmt"

	"github.com/cloudwego/eino/schema"
)

// systemPrompt is injected into every answer request. It pins the model to
// the retrieved context and forbids answering from parametric knowledge.
const systemPrompt = "You are an intelligent assistant answering questions based on the provided documents.\n" +
	"Strictly follow these rules:\n" +
	"1. Use ONLY the provided context to answer.\n" +
	"2. If the answer is not in the context, say so.\n" +
	"3. Be concise and professional."

// BuildPrompt renders the fixed system prompt plus a user turn carrying the
// citation-indexed context block and the question.
func BuildPrompt(question, contextBlock string) []*schema.Message {
	userContent := fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n", contextBlock, question)
	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userContent),
	}
}
