package actor

import (
	"fmt"
	"strings"

	"livecast/server/internal/language"
	"livecast/server/internal/model"
)

func buildSystemPrompt(req ReplyRequest) string {
	var sb strings.Builder

	sb.WriteString("[Role Definition]\n")
	sb.WriteString(fmt.Sprintf("You are %s, a VTuber streaming live and telling a story about: %s\n", req.Performer, req.Topic))
	if req.Persona != "" {
		sb.WriteString(fmt.Sprintf("Persona: %s\n", req.Persona))
	}
	if req.Background != "" {
		sb.WriteString(fmt.Sprintf("Background: %s\n", req.Background))
	}
	sb.WriteString("\n")

	sb.WriteString("[Language]\n")
	sb.WriteString(language.For(req.Lang).Hint)
	sb.WriteString("\n\n")

	sb.WriteString("[Relationship Rules]\n")
	sb.WriteString("- core fans (20+ interactions, gifts): warm nickname, mention their support\n")
	sb.WriteString("- regulars (10+): familiar tone\n")
	sb.WriteString("- familiar (3+): friendly recognition\n")
	sb.WriteString("- strangers: a short, warm welcome\n\n")

	sb.WriteString("[Constraints]\n")
	sb.WriteString("- Never repeat the comment back verbatim, and never say \"someone said\".\n")
	sb.WriteString("- One or two short spoken sentences.\n")
	sb.WriteString("- action: \"continue\" to go back to the script, \"adapt\" to rephrase the next line (put it in next_content), \"digress\" for a short detour (optional next_content).\n")
	sb.WriteString("- Output pure JSON: {\"response\": \"...\", \"action\": \"continue\", \"next_content\": \"\"}\n")
	return sb.String()
}

func buildUserPrompt(req ReplyRequest) string {
	var sb strings.Builder

	sb.WriteString("[Current Situation]\n")
	sb.WriteString(fmt.Sprintf("Stage: %s\n", req.Stage))
	if req.CurrentLine != "" {
		sb.WriteString(fmt.Sprintf("Just said: %s\n", req.CurrentLine))
	}
	if req.NextLine != "" {
		sb.WriteString(fmt.Sprintf("About to say: %s\n", req.NextLine))
	}
	if req.Memory != "" {
		sb.WriteString(req.Memory)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	sb.WriteString("[Comment]\n")
	sb.WriteString(fmt.Sprintf("From: %s (%s)\n", req.Event.User, describeViewer(req.Viewer)))
	sb.WriteString(fmt.Sprintf("Text: %q\n", req.Event.Text))
	sb.WriteString(fmt.Sprintf("Type: %s\n", commentType(req.Event)))
	if req.ActiveViewers != "" {
		sb.WriteString("Other active viewers:\n")
		sb.WriteString(req.ActiveViewers)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	sb.WriteString("[Strategy & Task]\n")
	switch req.Action {
	case model.ActionJump:
		sb.WriteString(fmt.Sprintf("You are about to jump ahead to answer it (%s). React briefly and lead into it.\n", req.AnswerHint))
	case model.ActionTease:
		sb.WriteString(fmt.Sprintf("The answer comes later (%s). Tease it, promise to get there, do not reveal it.\n", req.AnswerHint))
	case model.ActionImprovise:
		sb.WriteString("The story does not cover this. Improvise a short, in-character answer.\n")
	default:
		sb.WriteString("React naturally, then carry on with the story.\n")
	}
	return sb.String()
}

func describeViewer(p model.ViewerProfile) string {
	switch {
	case p.Tier >= model.TierCore:
		return fmt.Sprintf("core fan, %d interactions, gifted ¥%d", p.InteractionCount, p.GiftTotal)
	case p.Tier >= model.TierRegular:
		return fmt.Sprintf("regular, %d interactions", p.InteractionCount)
	case p.Tier >= model.TierFamiliar:
		return fmt.Sprintf("familiar, %d interactions", p.InteractionCount)
	default:
		return "new viewer"
	}
}

func commentType(evt model.Event) string {
	switch {
	case evt.Gift:
		return fmt.Sprintf("super chat ¥%d", evt.Amount)
	case evt.IsQuestion():
		return "question"
	default:
		return "comment"
	}
}
