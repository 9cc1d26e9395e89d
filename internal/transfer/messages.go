package transfer

import (
	"fmt"
	"strings"
	"time"

	"github.com/blockedby/relaybot/internal/models"
)

func startedText(taskID uint, p *Payload, resumed bool) string {
	verb := "started"
	if resumed {
		verb = "resumed"
	}
	return fmt.Sprintf("Transfer #%d %s\nChannel: @%s\nTitle: %s", taskID, verb, p.SourceChannel, p.Title)
}

func progressText(taskID uint, res *Result) string {
	return fmt.Sprintf("Transfer #%d progress\nScanned: %d\nMatched: %d\nTransferred: %d",
		taskID, res.Scanned, res.Matched, res.Transferred)
}

func pausedText(taskID uint, res *Result, backoff time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Transfer #%d paused", taskID)
	switch res.PauseReason {
	case models.PauseFloodWait:
		fmt.Fprintf(&b, " by flood control (%ds)", res.FloodWait)
		if backoff > 0 {
			fmt.Fprintf(&b, "\nResuming in about %s", backoff.Round(time.Second))
		}
	case models.PauseBatchLimit:
		b.WriteString(": batch finished")
	case models.PauseStopped:
		b.WriteString(": stopped")
	}
	fmt.Fprintf(&b, "\nTransferred this run: %d", res.Transferred)
	return b.String()
}

func completedText(taskID uint, res *Result) string {
	return fmt.Sprintf("Transfer #%d completed\nScanned: %d\nMatched: %d\nTransferred: %d\nTook: %s",
		taskID, res.Scanned, res.Matched, res.Transferred, res.Elapsed.Round(time.Second))
}

func failedText(taskID uint, err error) string {
	return fmt.Sprintf("Transfer #%d failed: %v", taskID, err)
}
