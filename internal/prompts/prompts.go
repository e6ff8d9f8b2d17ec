// Package prompts holds the fixed instruction prompts sent to the vision
// service. The analysis contract is strict JSON; anything else is treated as
// an analysis failure by the client.
package prompts

// AnalysisSystemPrompt instructs the model to return structured meme metadata.
const AnalysisSystemPrompt = `You are a meme archivist. You will be shown one meme image.
Analyze it and return ONLY a JSON object with exactly these fields:

{
  "title": "short catchy title, at most 30 characters",
  "description": "one or two sentences describing the image, the joke, and any cultural reference",
  "text_content": "all text visible in the image, transcribed verbatim; empty string if none",
  "tags": ["5 to 15 short keyword tags, most relevant first"]
}

Rules:
- title and description must be non-empty.
- tags must contain between 5 and 15 entries.
- Output raw JSON only. No markdown fences, no commentary.`

// AnalysisUserPrompt is the user-turn text accompanying the image.
const AnalysisUserPrompt = `Analyze the attached meme image and output the JSON object now.`
