package topicai

import (
	"fmt"
	"strings"
)

const extractionTemplate = `You are a YouTube content analyst. Extract 1-3 specific topics from this video.

Rules:
- Be SPECIFIC, not generic (e.g., "ChatGPT prompt engineering" not "AI")
- Focus on the main actionable topic viewers would search for
- Use lowercase, keep it concise (2-5 words per topic)
- Return ONLY the topics, one per line, nothing else

Example outputs:
chatgpt prompt engineering
midjourney v6 tutorial
how to grow on youtube shorts

Video content:
%s

Topics (1-3 lines):`

func extractionPrompt(content string) string {
	return fmt.Sprintf(extractionTemplate, content)
}

const clusteringTemplate = `Group these YouTube video topics into clusters. %s

Topics:
%s

Rules:
1. Group similar topics together
2. Cluster name: 2-5 lowercase words
3. BE SPECIFIC - use actual tool names, product names, or specific techniques
4. AVOID generic names like "ai automation", "ai tools", "productivity tips", "tutorials"
5. Include ALL topics (even unique ones as single-item clusters)

Examples of GOOD cluster names:
- "clawdbot setup tutorials"
- "gemini whisk workflows"
- "notebooklm features"
- "claude code tips"

Examples of BAD cluster names (TOO GENERIC - never use these):
- "ai automation"
- "ai tools"
- "productivity"
- "tutorials"

Return ONLY this JSON format, nothing else:
{"clusters":[{"name":"example name","topics":["topic1","topic2"]}]}`

func clusteringPrompt(topics []string, contextHint string) string {
	var b strings.Builder
	for _, t := range topics {
		b.WriteString("- ")
		b.WriteString(t)
		b.WriteString("\n")
	}
	hint := ""
	if contextHint != "" {
		hint = "Context: " + contextHint
	}
	return fmt.Sprintf(clusteringTemplate, hint, strings.TrimRight(b.String(), "\n"))
}
