// Package format renders pipeline and messenger output: progress lines,
// file-change notices, and a small markdown-to-Telegram-HTML converter.
package format

import (
	"fmt"
	"strings"
)

// FormatFileChange formats a file change notification for display.
func FormatFileChange(action, filePath, summary string) string {
	var emoji string
	switch action {
	case "created":
		emoji = "📄"
	case "modified":
		emoji = "✏️"
	case "deleted":
		emoji = "🗑️"
	default:
		emoji = "📝"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s **File %s**\n", emoji, action))
	sb.WriteString(fmt.Sprintf("`%s`", filePath))
	if summary != "" {
		sb.WriteString(fmt.Sprintf("\n\n%s", summary))
	}
	return sb.String()
}

// FormatProgress formats a progress update for display. Stage selects the
// emoji: planning, execution, verification, completed and error each have
// their own; any other stage gets a generic one.
func FormatProgress(stage, description string, progressPercent int) string {
	var emoji string
	switch stage {
	case "planning":
		emoji = "📋"
	case "execution":
		emoji = "⚙️"
	case "verification":
		emoji = "✅"
	case "completed":
		emoji = "🎉"
	case "error":
		emoji = "❌"
	default:
		emoji = "🔄"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %s\n", emoji, description))
	if progressPercent > 0 {
		sb.WriteString(fmt.Sprintf("\nProgress: %d%%", progressPercent))
	}
	return sb.String()
}

// FormatSummary renders a titled bullet list.
func FormatSummary(title string, bulletPoints []string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 **%s**\n\n", title))
	for _, point := range bulletPoints {
		sb.WriteString(fmt.Sprintf("• %s\n", point))
	}
	return sb.String()
}

// FormatCodeBlock wraps code in a fenced block with an optional language tag.
func FormatCodeBlock(code, language string) string {
	if language != "" {
		return fmt.Sprintf("```%s\n%s\n```", language, code)
	}
	return fmt.Sprintf("```\n%s\n```", code)
}

// FormatError formats an error message.
func FormatError(title, message string) string {
	return fmt.Sprintf("❌ **%s**\n\n%s", title, message)
}

// FormatSuccess formats a success message.
func FormatSuccess(title, message string) string {
	return fmt.Sprintf("✅ **%s**\n\n%s", title, message)
}

// EscapeHTML escapes the characters Telegram's HTML parse mode requires.
func EscapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// ToTelegramHTML converts a small subset of markdown (fenced code, bold,
// italic, inline code) to Telegram's HTML parse mode.
func ToTelegramHTML(text string) string {
	text = EscapeHTML(text)

	for {
		start := strings.Index(text, "```")
		if start == -1 {
			break
		}
		end := strings.Index(text[start+3:], "```")
		if end == -1 {
			break
		}
		content := text[start+3 : start+3+end]
		if newlineIdx := strings.Index(content, "\n"); newlineIdx != -1 {
			if newlineIdx > 0 {
				content = content[newlineIdx+1:]
			} else {
				content = content[1:]
			}
		}
		text = text[:start] + "<pre>" + content + "</pre>" + text[start+3+end+3:]
	}

	for {
		start := strings.Index(text, "**")
		if start == -1 {
			break
		}
		end := strings.Index(text[start+2:], "**")
		if end == -1 {
			break
		}
		text = text[:start] + "<b>" + text[start+2:start+2+end] + "</b>" + text[start+2+end+2:]
	}

	for {
		start := strings.Index(text, "`")
		if start == -1 {
			break
		}
		end := strings.Index(text[start+1:], "`")
		if end == -1 {
			break
		}
		text = text[:start] + "<code>" + text[start+1:start+1+end] + "</code>" + text[start+1+end+1:]
	}

	return text
}

// ChunkForMessenger splits text into pieces no longer than maxLen, preferring
// to break on a newline boundary so code blocks don't split mid-line.
func ChunkForMessenger(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}
	var chunks []string
	for len(text) > maxLen {
		cut := strings.LastIndex(text[:maxLen], "\n")
		if cut <= 0 {
			cut = maxLen
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
		text = strings.TrimPrefix(text, "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
