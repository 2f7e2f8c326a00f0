package copilot

import "fmt"

const suggestionPrompt = `You are an expert interview copilot assisting a human interviewer.
Below is the latest segment of a live technical interview transcript.
Suggest 1-2 follow-up questions that probe deeper or verify a technical claim.
Keep them concise. Return only the questions, one per line, nothing else.

Transcript segment:
%q`

const summaryPrompt = `You are an expert HR analyst. Below is the complete transcript of a live technical interview.
Produce a structured post-mortem analysis as a JSON object with exactly these keys:
- "pros": array of positive observations about the candidate (3-5 items)
- "cons": array of concerns or weaknesses observed (2-4 items)
- "verdict": a 2-3 sentence overall assessment
- "topics": array of the key topics and technologies discussed
- "recommendedHire": boolean

Return ONLY valid JSON with no markdown and no explanation.

Full interview transcript:
%q`

func buildSuggestionPrompt(segment string) string {
	return fmt.Sprintf(suggestionPrompt, segment)
}

func buildSummaryPrompt(transcript string) string {
	return fmt.Sprintf(summaryPrompt, transcript)
}
