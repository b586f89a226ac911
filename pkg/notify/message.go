package notify

import (
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/opus-nx/swarm/pkg/models"
)

const maxBlockTextLength = 2900

var verdictEmoji = map[models.CheckpointVerdict]string{
	models.VerdictVerified:     ":white_check_mark:",
	models.VerdictAgree:        ":thumbsup:",
	models.VerdictQuestionable: ":thinking_face:",
	models.VerdictDisagree:     ":x:",
	models.VerdictExplore:      ":mag:",
	models.VerdictNote:         ":memo:",
}

var decisionLabel = map[models.RetentionDecision]string{
	models.RetentionRetain:  "Correction retained",
	models.RetentionDefer:   "Decision deferred",
	models.RetentionArchive: "Experiment archived",
}

func sessionURL(sessionID, dashboardURL string) string {
	return fmt.Sprintf("%s/sessions/%s", dashboardURL, sessionID)
}

// BuildCheckpointMessage creates Block Kit blocks for a human checkpoint
// notification. The correction block is omitted when no correction was given.
func BuildCheckpointMessage(sessionID, nodeID string, verdict models.CheckpointVerdict, correction, dashboardURL string) []goslack.Block {
	emoji := verdictEmoji[verdict]
	if emoji == "" {
		emoji = ":question:"
	}
	header := fmt.Sprintf("%s *Human checkpoint: %s*\nNode `%s`", emoji, verdict, nodeID)

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
	}

	if correction != "" {
		text := fmt.Sprintf("*Correction:*\n%s", truncateForSlack(correction))
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		))
	}

	btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "View Reasoning Graph", false, false))
	btn.URL = sessionURL(sessionID, dashboardURL)
	blocks = append(blocks, goslack.NewActionBlock("", btn))

	return blocks
}

// BuildRetentionMessage creates Block Kit blocks for a retention decision
// notification.
func BuildRetentionMessage(experimentID, sessionID string, decision models.RetentionDecision, performedBy, dashboardURL string) []goslack.Block {
	label := decisionLabel[decision]
	if label == "" {
		label = "Retention decision: " + string(decision)
	}
	text := fmt.Sprintf(":package: *%s*\nExperiment `%s` by %s", label, experimentID, performedBy)

	btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "View Session", false, false))
	btn.URL = sessionURL(sessionID, dashboardURL)

	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
		goslack.NewActionBlock("", btn),
	}
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated)_"
}
