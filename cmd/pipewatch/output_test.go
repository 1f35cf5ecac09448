package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/pipewatch/internal/jobclient"
	"github.com/ternarybob/pipewatch/internal/models"
	"github.com/ternarybob/pipewatch/internal/monitor"
	"github.com/ternarybob/pipewatch/internal/registry"
	"github.com/ternarybob/pipewatch/internal/view"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("payroll: %w", registry.ErrUnknownKind), exitUnknownKind},
		{fmt.Errorf("reports: %w", monitor.ErrCapabilityDenied), exitDenied},
		{fmt.Errorf("%w: GET /status: refused", jobclient.ErrCommunication), exitUnreachable},
		{fmt.Errorf("news: %w: 내일 다시 시도해주세요", errRefused), exitRefused},
		{fmt.Errorf("news stop: %w", view.ErrControlUnavailable), exitUnavailable},
		{fmt.Errorf("boom"), exitFailure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err), tt.err.Error())
	}
}

func TestWriteOutput(t *testing.T) {
	value := []monitor.View{{Kind: models.JobKindNews, Phase: monitor.PhaseCompleted, Percent: 100}}

	var buf bytes.Buffer
	require.NoError(t, writeOutput(&buf, "json", value, nil))
	assert.Contains(t, buf.String(), `"phase": "completed"`)

	buf.Reset()
	require.NoError(t, writeOutput(&buf, "yaml", value, nil))
	assert.Contains(t, buf.String(), "phase: completed")

	buf.Reset()
	require.NoError(t, writeOutput(&buf, "text", value, func(w io.Writer) { fmt.Fprint(w, "plain") }))
	assert.Equal(t, "plain", buf.String())

	assert.Error(t, writeOutput(&buf, "xml", value, nil))
}

func TestAvailableActions(t *testing.T) {
	resumable := monitor.View{Phase: monitor.PhaseResumable, CanResume: true}
	assert.Equal(t, []string{"resume", "refresh"}, availableActions(resumable))

	running := monitor.View{Phase: monitor.PhaseActive, IsPolling: true}
	assert.Equal(t, []string{"stop", "unwatch", "refresh"}, availableActions(running))
}

func TestConsoleNotifier(t *testing.T) {
	var buf bytes.Buffer
	newConsoleNotifier(&buf).Notify(context.Background(), models.Notice{
		Kind:    models.JobKindReports,
		Level:   models.NoticeWarning,
		Message: "이미 오늘 수집이 완료되었습니다",
	})
	assert.Contains(t, buf.String(), "WARNING [reports] 이미 오늘 수집이 완료되었습니다")
}
