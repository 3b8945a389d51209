package synth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/notesynth/pkg/conversation"
	"github.com/kittclouds/notesynth/pkg/extract"
)

func TestSystemPrompt(t *testing.T) {
	p := SystemPrompt()
	assert.NotContains(t, p, "{instructions}")
	assert.Contains(t, p, "Markers are NOT [[links]] or #tags.")
	assert.True(t, strings.HasPrefix(p, "You are an analytical sounding board"))
}

func TestFormatMaterial(t *testing.T) {
	got := FormatMaterial([]extract.FileContents{{
		File:         "2024-01-02",
		Path:         "journal/2024-01-02.md",
		LastModified: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
		Contents:     "Walked. %0001%",
	}, {
		File:     "Stoicism",
		Contents: "Virtue.",
	}})
	assert.Equal(t, "# 2024-01-02\npath: journal/2024-01-02.md\nlast modified: 2024-01-02\n```\nWalked. %0001%\n```\n"+
		"\n# Stoicism\n```\nVirtue.\n```\n", got)
}

func TestBuildMessages(t *testing.T) {
	history := []conversation.Turn{
		{Role: conversation.RoleUser, Content: "What did I read?"},
		{Role: conversation.RoleAssistant, Content: "Seneca."},
		{Role: conversation.RoleUser, Content: "  "},
	}
	msgs := BuildMessages(history, nil, "")
	require.Len(t, msgs, 4)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, Message{Role: RoleUser, Content: "What did I read?"}, msgs[1])
	assert.Equal(t, Message{Role: RoleAssistant, Content: "Seneca."}, msgs[2])
	assert.Equal(t, Message{Role: RoleUser, Content: "Guidance: " + defaultGuidance}, msgs[3])

	msgs = BuildMessages(nil, []extract.FileContents{{File: "a", Contents: "x"}}, "Compare them")
	require.Len(t, msgs, 2)
	assert.Equal(t, "# a\n```\nx\n```\n\nGuidance: Compare them", msgs[1].Content)
}
