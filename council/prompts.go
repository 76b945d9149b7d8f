package council

import (
	"fmt"
	"strings"

	"github.com/BaSui01/council/panel"
)

func formatPriorWork(prior []Contribution) string {
	parts := make([]string, 0, len(prior))
	for _, entry := range prior {
		parts = append(parts, fmt.Sprintf("**Expert %d: %s**\n%s", entry.Order, entry.Expert.Role, entry.Text))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func summarizeContributions(contributions []Contribution) string {
	var b strings.Builder
	for _, entry := range contributions {
		text := entry.Text
		if runes := []rune(text); len(runes) > 300 {
			text = string(runes[:300]) + "..."
		}
		fmt.Fprintf(&b, "- Expert %d (%s): %s\n", entry.Order, entry.Expert.Role, text)
	}
	return b.String()
}

// buildContributionPrompt renders the prompt for one sequential
// contribution. The first panel member lays the foundation; every
// later member first reviews the complete prior record, which is
// embedded verbatim.
func buildContributionPrompt(userQuery, brief string, expert panel.ExpertSpec, prior []Contribution, panelSize int) string {
	var contextSection string
	if len(prior) > 0 {
		contextSection = fmt.Sprintf(`<prior_contributions>
%s
</prior_contributions>

<your_role>
You are Expert %d of %d. Your job is to CRITICALLY REVIEW and then BUILD UPON the prior work.
Your unique mandate: %s
</your_role>

<quality_review_requirements>
Before adding your contribution, you MUST:
1. **Identify Inaccuracies**: Flag any factual errors or misleading statements.
2. **Surface Assumptions**: Call out unstated assumptions that may not hold.
3. **Detect Reasoning Errors**: Point out logical fallacies, gaps, or weak arguments.
4. **Challenge Opportunities**: Question areas where the approach could be stronger.
5. **Correct and Improve**: Fix any issues you found, then add your unique value.
</quality_review_requirements>`, formatPriorWork(prior), expert.Order, panelSize, expert.Task)
	} else {
		contextSection = fmt.Sprintf(`<your_role>
You are Expert %d of %d. You are the FIRST expert laying the FOUNDATION.
Subsequent experts will review your work for errors and build upon it, so be rigorous.
Your mandate: %s
</your_role>

<foundation_requirements>
As the first expert, you MUST:
1. **State Key Assumptions**: Be explicit about what you're assuming.
2. **Be Rigorous**: Avoid weak claims or unsupported assertions.
3. **Set Clear Direction**: Provide a solid framework others can build on.
4. **Anticipate Gaps**: Acknowledge areas that need further expertise.
</foundation_requirements>`, expert.Order, panelSize, expert.Task)
	}

	reviewHeader := ""
	if len(prior) > 0 {
		reviewHeader = "**## Quality Review**\n- Flag any inaccuracies, assumptions, or reasoning errors in prior work\n- Note areas of opportunity that need strengthening\n\n"
	}

	return fmt.Sprintf(`<system>You are %s, a world-class professional contributing to a rigorous collaborative process.</system>

<mission>
Help produce the HIGHEST QUALITY artifact that fully addresses the user's intent.
Your contribution must move the reasoning quality, richness, and depth FORWARD.
</mission>

<user_query>%s</user_query>

<intent_analysis>
%s
</intent_analysis>

%s

<contribution_framework>
Structure your response as follows:

%s**## My Contribution: %s**
- Add your unique value and expertise
- Be specific, actionable, and evidence-based
- Integrate with and enhance prior work
- Target 250-400 words

**## Key Assumptions** (if any)
- State any assumptions you're making
</contribution_framework>

<quality_standards>
- **Accuracy**: Every claim must be correct and defensible.
- **Depth**: Go beyond surface-level analysis and provide real insight.
- **Actionability**: The user should be able to act on this.
- **Coherence**: Build a unified artifact, not disconnected pieces.
</quality_standards>

Provide your rigorous expert contribution now:`, expert.Role, userQuery, brief, contextSection, reviewHeader, expert.Role)
}

func buildPlanningPrompt(run *Run) string {
	return fmt.Sprintf(`<task>
You are the Synthesis Architect. Create a STRUCTURED PLAN for the Chairman's final synthesis.
</task>

<user_query>%s</user_query>

<intent_analysis>
%s
</intent_analysis>

<expert_contributions>
%s
</expert_contributions>

<verification_report>
%s
</verification_report>

<output_format>
## Synthesis Plan for Chairman

### Critical Missing Elements
- [What wasn't addressed]

### Reasoning Gaps to Address
- [Logic needing deeper analysis]

### Additional Expertise/Data Needed
- [Missing facts or evidence]

### Recommended Structure
- [Outline for final artifact]

### Quality Checklist
- [ ] [Requirement 1]
- [ ] [Requirement 2]

### Critical Actions for Chairman
1. [Must-do 1]
2. [Must-do 2]
</output_format>

Provide the synthesis plan now:`, run.UserQuery, run.Brief, summarizeContributions(run.Contributions), run.VerificationReport)
}

func buildEditorialPrompt(run *Run) string {
	return fmt.Sprintf(`<task>
You are the Editorial Director. Create detailed writing guidelines for the Chairman's final synthesis.
The guidelines must ensure the final output's style perfectly matches the user's intent and context.
</task>

<user_query>%s</user_query>

<intent_analysis>
%s
</intent_analysis>

<synthesis_plan>
%s
</synthesis_plan>

<editorial_analysis>
Consider:
1. What is the user's likely expertise level? (beginner to expert)
2. What is the appropriate formality level? (casual to highly formal)
3. What tone would be most effective? (encouraging, authoritative, cautious, etc.)
4. What is the optimal length and depth?
5. What formatting would enhance readability?
</editorial_analysis>

<output_format>
## Editorial Guidelines for Chairman

### Voice & Persona
- [How should the Chairman "sound"? What character/authority level?]

### Tone
- [e.g., Authoritative but accessible, Technical but clear, etc.]

### Audience Calibration
- **Expertise Level**: [Beginner/Intermediate/Expert]
- **Assumed Context**: [What the user likely knows]
- **Avoid**: [Jargon to skip, concepts to not over-explain]

### Style Guidelines
- **Sentence Structure**: [Short and punchy vs. flowing and detailed]
- **Use of Examples**: [When and how to include them]
- **Technical Depth**: [How deep to go]

### Formatting Instructions
- **Length Target**: [word count or section count]
- **Structure**: [How to organize the response]
- **Visual Elements**: [Use of headers, bullets, bold, etc.]

### Style Anti-Patterns
- [What to explicitly AVOID in the writing]

### Quality Bar
- [What makes this response "excellent" vs. "adequate"]
</output_format>

Provide the editorial guidelines now:`, run.UserQuery, run.Brief, run.SynthesisPlan)
}

func buildFinalPrompt(run *Run) string {
	return fmt.Sprintf(`<system>You are the Council Chairman, the master synthesizer responsible for producing a TOP QUALITY final artifact.</system>

<mission>
Synthesize all expert contributions into a definitive, world-class artifact that FULLY addresses the user's intent.
You MUST follow BOTH the Synthesis Plan AND the Editorial Guidelines precisely.
</mission>

<user_query>%s</user_query>

<intent_analysis>
%s
</intent_analysis>

<expert_contributions>
%s
</expert_contributions>

<verification_report>
%s
</verification_report>

<synthesis_plan>
%s
</synthesis_plan>

<editorial_guidelines>
%s
</editorial_guidelines>

<chairman_mandate>
You MUST:
1. **Address ALL Missing Elements** from the synthesis plan
2. **Fill ALL Reasoning Gaps** with rigorous analysis
3. **Follow the Editorial Guidelines** for tone, voice, and style
4. **Match the recommended structure** from the plan
5. **Satisfy ALL Quality Checkpoints**
6. **Meet the Quality Bar** defined in editorial guidelines
</chairman_mandate>

<synthesis_protocol>
1. **BLUF (Bottom Line Up Front)**: Start with a definitive 1-2 sentence answer.
2. **Comprehensive Coverage**: Address every dimension of user intent.
3. **Follow Editorial Voice**: Match the tone and style guidelines exactly.
4. **Evidence-Based**: Support claims with reasoning and data.
5. **Actionable Conclusion**: End with clear, specific next steps.
</synthesis_protocol>

<quality_standards>
- **Completeness**: User intent must be FULLY addressed
- **Accuracy**: All claims must be verified and correct
- **Depth**: Provide real insight, not surface-level responses
- **Coherence**: One unified voice, not a patchwork of opinions
- **Actionability**: User must be able to act on this immediately
- **Style Match**: Must match Editorial Guidelines perfectly
</quality_standards>

Provide the final TOP QUALITY synthesized artifact now:`,
		run.UserQuery, run.Brief, formatPriorWork(run.Contributions),
		run.VerificationReport, run.SynthesisPlan, run.EditorialGuidelines)
}

func buildTitlePrompt(userQuery string) string {
	return fmt.Sprintf(`<task>Generate a concise title (3-5 words) for this query.</task>
<query>%s</query>
<rules>No quotes/punctuation. Be specific.</rules>
Title:`, userQuery)
}
