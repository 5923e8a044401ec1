package report

import "strings"

// systemPrompt frames the model as a workplace communication evaluator and
// pins down the rubric and band mapping. Shared by the structured and
// free-text tiers.
const systemPrompt = `You are a professional communication evaluation and diagnostics engine used for employee skill development.

This evaluation is NOT about public speaking or presentation skills.
It is focused on spoken professional and technical communication in workplace contexts
(e.g., explanations, knowledge sharing, technical walkthroughs, internal discussions).

Your task is to:
1. Score communication using an analytic, rubric-based framework
2. Produce a deep diagnostic analysis with concrete linguistic evidence
3. Prescribe corrective actions that target root causes, not surface symptoms

You must evaluate the transcript across these dimensions:
- Clarity & Understandability
- Tone & Style
- Engagement & Interactivity
- Structure & Organization
- Content Accuracy & Validity
- Persuasion / Influence (professional context)
- Language Quality (Grammar & Fluency)
- Speech Patterns (Fillers, Pauses, Pacing)

IMPORTANT DISTINCTION:
- Fluency and confidence do NOT compensate for grammar or accuracy errors
- Technical correctness and language mechanics both impact professional credibility

Your analysis must:
- Quote specific examples from the transcript
- Count repeated error types when possible
- Assess professional effectiveness in real workplace contexts
- Avoid motivational language; be objective and diagnostic

SCORING RULES:
- Each criterion scored 0-100
- Band mapping:
  Poor: <40
  Average: 40-59
  Good: 60-79
  Excellent: 80-100
- Overall score = rounded arithmetic mean of criteria

OUTPUT RULES:
- Respond ONLY with valid JSON
- No markdown
- No narrative outside JSON
- Be explicit, precise, and evidence-driven`

// reportShape is the literal JSON shape embedded in the free-text and
// repair prompts so the model has an exact template to fill in.
const reportShape = `{
  "overall_score": <integer 0-100>,
  "overall_band": "<Poor | Average | Good | Excellent>",
  "summary": "<concise professional assessment>",
  "criteria": {
    "clarity_understandability": {"score": <integer>, "band": "<string>", "notes": "<string>"},
    "tone_style": {"score": <integer>, "band": "<string>", "notes": "<string>"},
    "engagement_interactivity": {"score": <integer>, "band": "<string>", "notes": "<string>"},
    "structure_organization": {"score": <integer>, "band": "<string>", "notes": "<string>"},
    "content_accuracy_validity": {"score": <integer>, "band": "<string>", "notes": "<string>"},
    "persuasion_influence": {"score": <integer>, "band": "<string>", "notes": "<string>"},
    "language_quality": {"score": <integer>, "band": "<string>", "notes": "<string>"},
    "speech_patterns": {"score": <integer>, "band": "<string>", "notes": "<string>"}
  },
  "strengths": ["<string>"],
  "improvement_areas": ["<string>"],
  "action_plan": [
    {
      "focus": "<grammar | fluency | structure | accuracy>",
      "what_to_improve": "<specific issue>",
      "why_it_matters": "<professional impact>",
      "how_to_improve": "<explicit drill or practice>"
    }
  ]
}`

const userPromptTemplate = `Analyze the following transcribed speech using the professional communication evaluation framework.

--- TRANSCRIPTION START ---
{transcription}
--- TRANSCRIPTION END ---

Return a SINGLE JSON object with EXACTLY this structure:

` + reportShape + `

STRICT REQUIREMENTS:
- All scores must be integers
- strengths and improvement_areas must each contain 1-10 items
- action_plan must contain 1-7 items
- Use evidence from the transcript
- No motivational language
- Output ONLY valid JSON`

const repairSystemPrompt = `You are a JSON correction assistant. Return ONLY valid JSON.`

const repairPromptTemplate = `The previous response was invalid JSON or did not match the required schema.

Return ONLY valid JSON matching EXACTLY this structure:

` + reportShape + `

Previous response:
{previous_response}

Return ONLY valid JSON. No markdown. No commentary.`

// UserPrompt builds the rubric prompt for a transcript.
func UserPrompt(transcript string) string {
	return strings.Replace(userPromptTemplate, "{transcription}", transcript, 1)
}

// RepairPrompt builds the fix-it prompt carrying the previous raw output.
func RepairPrompt(previous string) string {
	return strings.Replace(repairPromptTemplate, "{previous_response}", previous, 1)
}
