package notify

import (
	"fmt"

	"github.com/slack-go/slack"

	"crimefeed/internal/alert"
)

type slackPoster interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackNotifier posts a compact one-line alert to a channel. It shares the
// email subject format so the channel reads like the alert log.
type SlackNotifier struct {
	Content
	API       slackPoster
	ChannelID string
}

func NewSlackNotifier(content Content, token, channelID string) *SlackNotifier {
	return &SlackNotifier{Content: content, API: slack.New(token), ChannelID: channelID}
}

func (n *SlackNotifier) Dispatch(c alert.Candidate) error {
	text := fmt.Sprintf("%s\n%s · %s", n.Subject(c), c.Record.Location(), c.Record.Agency)
	if n.MapURL != "" {
		text += "\n" + n.MapURL
	}
	if _, _, err := n.API.PostMessage(n.ChannelID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	return nil
}

// PostSummary reports a run outcome to the channel, mirroring the log line
// the scheduler prints.
func (n *SlackNotifier) PostSummary(summary string) error {
	_, _, err := n.API.PostMessage(n.ChannelID, slack.MsgOptionText(summary, false))
	return err
}
