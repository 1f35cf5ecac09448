package view

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/pipewatch/internal/monitor"
)

const barWidth = 20

// RenderLine draws a single-line text panel of v, e.g.
//
//	[news] 수집 중 [##############------]  70% 7/10 investors, 52 articles (현재: 미래에셋) 1m30s
func RenderLine(v monitor.View) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] %s %s %3d%%", v.Kind, v.Label, progressBar(v.Percent), v.Percent)

	if v.Total > 0 || v.Processed > 0 {
		fmt.Fprintf(&b, " %d/%d %s", v.Processed, v.Total, v.UnitLabel)
	}
	if v.Produced > 0 {
		fmt.Fprintf(&b, ", %d %s", v.Produced, v.ProducedLabel)
	}
	if v.CurrentUnit != "" && v.Running() {
		fmt.Fprintf(&b, " (현재: %s)", v.CurrentUnit)
	}
	if v.ElapsedSeconds > 0 {
		fmt.Fprintf(&b, " %s", v.Elapsed().Round(time.Second))
	}
	if v.ErrorMessage != "" {
		fmt.Fprintf(&b, " 오류: %s", v.ErrorMessage)
	}
	if v.MonitoringError != "" {
		b.WriteString(" [연결 문제: 마지막 상태 표시 중]")
	}

	return b.String()
}

func progressBar(percent int) string {
	filled := percent * barWidth / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled) + "]"
}
