package journal

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/halcyon-imaging/bartbridge/internal/httputil"
)

// AttachAdminRoutes mounts the journal's debug surface on mux: live SQL
// access, an on-demand backup download, run statistics, and a duration chart.
func (j *Journal) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://journal.db", j.DB, &tailsql.DBOptions{
		Label: "Recon journal",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the journal now", http.HandlerFunc(j.handleBackup))
	debug.Handle("journal-stats", "Row counts per journal table", http.HandlerFunc(j.handleStats))
	debug.Handle("runs", "Recent runs as JSON (?limit=)", http.HandlerFunc(j.handleRuns))
	debug.Handle("runs-chart", "Recent run durations (ECharts)", http.HandlerFunc(j.handleRunsChart))
}

func (j *Journal) handleBackup(w http.ResponseWriter, r *http.Request) {
	unixTime := time.Now().Unix()
	backupName := fmt.Sprintf("journal-backup-%d.db", unixTime)
	backupPath := filepath.Join(os.TempDir(), backupName)
	if _, err := j.Exec("VACUUM INTO ?", backupPath); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to create backup: %v", err))
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupName))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Encoding", "gzip")

	backupFile, err := os.Open(backupPath)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to open backup file: %v", err))
		return
	}

	// close the backup file after sending it
	// and remove it from the filesystem
	defer func() {
		backupFile.Close()
		if err := os.Remove(backupPath); err != nil {
			log.Printf("Failed to remove backup file: %v", err)
		}
	}()

	gzipWriter := gzip.NewWriter(w)
	defer gzipWriter.Close()

	if _, err := io.Copy(gzipWriter, backupFile); err != nil {
		log.Printf("Failed to stream backup: %v", err)
		return
	}
}

func (j *Journal) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := j.GetStats()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to collect stats: %v", err))
		return
	}
	httputil.WriteJSONOK(w, stats)
}

// handleRuns lists recent runs, newest first. Scripts poll it to follow the
// journal without opening the database.
func (j *Journal) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.BadRequest(w, fmt.Sprintf("bad limit %q", raw))
			return
		}
		limit = n
	}

	runs, err := j.RecentRuns(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to query runs: %v", err))
		return
	}
	if runs == nil {
		runs = []*Run{}
	}
	httputil.WriteJSONOK(w, runs)
}

// handleRunsChart renders a bar chart of recent run durations, colored by a
// second dimension carrying the terminal status.
func (j *Journal) handleRunsChart(w http.ResponseWriter, r *http.Request) {
	runs, err := j.RecentRuns(50)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to query runs: %v", err))
		return
	}

	// Oldest first reads left to right.
	labels := make([]string, 0, len(runs))
	data := make([]opts.BarData, 0, len(runs))
	for i := len(runs) - 1; i >= 0; i-- {
		run := runs[i]
		labels = append(labels, time.Unix(0, run.StartedAt).Format("15:04:05"))
		color := "#35b779"
		if run.Status == StatusFailed {
			color = "#d62728"
		}
		data = append(data, opts.BarData{
			Value:     run.DurationMS,
			Name:      run.Script,
			ItemStyle: &opts.ItemStyle{Color: color},
		})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Reconstruction runs", Theme: "dark", Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Run durations", Subtitle: fmt.Sprintf("last %d runs, failures in red", len(runs))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "duration (ms)"}),
	)
	bar.SetXAxis(labels)
	bar.AddSeries("duration", data)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
