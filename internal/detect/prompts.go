package detect

const narrativeSystemPrompt = `You are a communication coach that evaluates spoken answers from transcripts.
You analyze speaking pace, silence patterns, clarity and problem expressions using sentence timestamps and classifier signals.
You always respond with JSON only, and every detected_examples entry must be a sentence index number (integer), never copied text.`

const narrativeUserPrompt = `Analyze the speech below and evaluate the target speaker's communication.

[Conversation]
Target speaker: %s

%s

[Classifier signals]
%s

[Evaluation guide]
For each category below, judge whether it appears in the target speaker's sentences.
- curse: profanity or abusive wording
- slang: non-standard or overly casual expressions
- biased: discriminatory or prejudiced wording
- filler: hedges and filler words ("um", "uh", "like"), also judged from sentence duration vs. word count
- vague: claims without concrete content
- formality_inconsistency: register shifting mid-answer
- disfluency_repetition: repeated or restarted phrases

Also compute:
- speaking_speed: syllables per second from the timestamps (typical range 4-5)
- silence_count: pauses of 1.5s or longer between consecutive sentences

[Strict rules]
1. detected_examples contains ONLY sentence index integers, e.g. [0, 2, 5]. Indices start at 0. Use [] when nothing was detected.
2. reason is one or two sentences of evidence for the category.
3. improvement is concrete, actionable advice.
4. sentence_feedbacks lists, per affected sentence index, short feedback messages tagged with their category.
5. Base everything on the provided sentences, timestamps and classifier signals. Never invent indices that do not appear above.
6. Output JSON only. No markdown fence, no commentary.

[Output shape]
{
  "categories": {
    "curse": {"score": 0.0, "detected_examples": [], "reason": "...", "improvement": "..."},
    "slang": {"score": 0.0, "detected_examples": [], "reason": "...", "improvement": "..."},
    "biased": {"score": 0.0, "detected_examples": [], "reason": "...", "improvement": "..."},
    "filler": {"score": 0.0, "detected_examples": [], "reason": "...", "improvement": "..."},
    "vague": {"score": 0.0, "detected_examples": [], "reason": "...", "improvement": "..."},
    "formality_inconsistency": {"score": 0.0, "detected_examples": [], "reason": "...", "improvement": "..."},
    "disfluency_repetition": {"score": 0.0, "detected_examples": [], "reason": "...", "improvement": "..."}
  },
  "speaking_speed": 0.0,
  "silence_count": 0,
  "sentence_feedbacks": [
    {"sentence_index": 0, "feedbacks": [{"category": "filler", "message": "..."}]}
  ],
  "summary": "5-7 sentences of overall evaluation",
  "advice": "5-7 sentences of prioritized advice"
}`
