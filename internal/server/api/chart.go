package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/facewatch/facewatch/internal/expression"
)

// statsChart handles GET /api/stats/chart?session=ID. It renders the onset
// counts as an HTML bar chart with one bar per expression, zeros included,
// in classification order.
func (h *HistoryHandler) statsChart(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")

	counts, err := h.store.Events().CountByLabel(sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count events")
		return
	}
	byLabel := make(map[string]int, len(counts))
	for _, c := range counts {
		byLabel[c.Label] = c.Count
	}

	labels := expression.Labels()
	x := make([]string, 0, len(labels))
	y := make([]opts.BarData, 0, len(labels))
	for _, l := range labels {
		x = append(x, string(l))
		y = append(y, opts.BarData{Value: byLabel[string(l)]})
	}

	subtitle := "all sessions"
	if sessionID != "" {
		subtitle = "session " + sessionID
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Expressions", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Expression onsets", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("onsets", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
