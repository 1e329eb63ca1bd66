package ui

import (
	"bytes"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStage(t *testing.T) {
	tests := []struct {
		name string
		want Stage
	}{
		{"read", StageRead},
		{"embed", StageEmbed},
		{"write", StageWrite},
		{"index", StageIndex},
		{"graph", StageGraph},
		{"complete", StageComplete},
		{"chunk", Stage(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStage(tt.name))
		})
	}
}

func TestStage_StringAndIcon(t *testing.T) {
	assert.Equal(t, "embed", StageEmbed.String())
	assert.Equal(t, "EMBED", StageEmbed.Icon())
	assert.Equal(t, "unknown", Stage(-1).String())
	assert.Equal(t, "???", Stage(42).Icon())
}

func TestNewRenderer_NonTTYIsPlain(t *testing.T) {
	// Given: a buffer as output
	var buf bytes.Buffer

	// When: creating a renderer
	r := NewRenderer(Config{Output: &buf})

	// Then: it is the plain renderer
	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)
}

func TestNewRenderer_ForcePlain(t *testing.T) {
	r := NewRenderer(Config{Output: &bytes.Buffer{}, ForcePlain: true})

	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)
}

func TestIsTTY_Buffer(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
}

func TestPlainRenderer_Output(t *testing.T) {
	// Given: a plain renderer
	var buf bytes.Buffer
	r := NewPlainRenderer(Config{Output: &buf})
	require.NoError(t, r.Start(t.Context()))

	// When: reporting progress and completion
	r.UpdateProgress(ProgressEvent{Stage: StageEmbed, Current: 32, Total: 100, Message: "embedding"})
	r.UpdateProgress(ProgressEvent{Stage: StageIndex, Current: 4, Total: 4})
	r.UpdateProgress(ProgressEvent{Stage: StageGraph, Message: "building graph"})
	r.UpdateProgress(ProgressEvent{Stage: StageWrite})
	r.Complete(CompletionStats{WorkspaceID: "ws-1", Chunks: 100, Embedded: 40, Total: 250, Duration: 1500 * time.Millisecond})
	require.NoError(t, r.Stop())

	// Then: each update is one line and empty updates are skipped
	want := "[EMBED] 32/100 - embedding\n" +
		"[INDEX] 4/4\n" +
		"[GRAPH] building graph\n" +
		"Complete: 100 chunks loaded (40 embedded) in 1.5s, 250 in workspace ws-1\n"
	assert.Equal(t, want, buf.String())
}

func TestLoadModel_TracksProgress(t *testing.T) {
	// Given: a fresh model without color
	m := newLoadModel("ws-1")
	m.styles = NoColorStyles()

	// When: a progress message arrives
	_, cmd := m.Update(progressMsg{Stage: StageEmbed, Current: 10, Total: 40})

	// Then: the view shows the counts and the stage trail
	assert.Nil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "10 / 40 chunks")
	assert.Contains(t, view, "● read")
	assert.Contains(t, view, "○ graph")
	assert.Contains(t, view, "amanrag load • ws-1")
}

func TestLoadModel_CompleteQuits(t *testing.T) {
	m := newLoadModel("")
	m.styles = NoColorStyles()

	_, cmd := m.Update(completeMsg{Chunks: 7, Embedded: 3, Total: 9, Duration: time.Second})

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	view := m.View()
	assert.Contains(t, view, "Load complete")
	assert.Contains(t, view, "Loaded:   7")
	assert.Contains(t, view, "Total:    9")
}

func TestLoadModel_WindowResize(t *testing.T) {
	m := newLoadModel("")

	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	assert.Equal(t, 120, m.width)
	assert.Equal(t, 100, m.bar.Width)
}

func TestTUIRenderer_StopBeforeStart(t *testing.T) {
	r := NewTUIRenderer(Config{Output: &bytes.Buffer{}})

	r.UpdateProgress(ProgressEvent{Stage: StageRead})
	r.Complete(CompletionStats{})

	assert.NoError(t, r.Stop())
}
