package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/ember-labs/ember/pkg/archive"
)

// serveStatus runs the read-only diagnostics HTTP surface. It only reads
// snapshots of shared state and has no control-plane effect.
// Endpoints:
//   - GET /        — HTML system stats page
//   - GET /status  — JSON state snapshot
//   - GET /health  — health check
func (b *Bot) serveStatus(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", b.handleHome)
	mux.HandleFunc("/status", b.handleStatus)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if b.healthy.Load() {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, `{"status":"ok","uptime":"%s"}`, time.Since(b.startedAt).Round(time.Second))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"status":"starting"}`)
		}
	})

	srv := &http.Server{Addr: b.config.HTTPAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	slog.Info("diagnostics listening", "addr", b.config.HTTPAddr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		slog.Warn("diagnostics server error", "error", err)
	}
}

func (b *Bot) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	hostname, _ := os.Hostname()
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<h1>sys_ok</h1>
<h2>Process Stats:</h2>
<ul>
<li><b>Host:</b> %s</li>
<li><b>OS:</b> %s/%s</li>
<li><b>Go:</b> %s</li>
<li><b>Uptime:</b> %s</li>
<li><b>Goroutines:</b> %d</li>
<li><b>Heap In Use:</b> %d MB</li>
<li><b>Updates Processed:</b> %d</li>
</ul>
<hr>
<a href="/status">Status JSON</a>
`,
		hostname,
		runtime.GOOS, runtime.GOARCH,
		runtime.Version(),
		time.Since(b.startedAt).Round(time.Second),
		runtime.NumGoroutine(),
		mem.HeapInuse/(1024*1024),
		b.processed.Load(),
	)
}

// statusResponse is the JSON payload for /status.
type statusResponse struct {
	Name              string         `json:"name"`
	Uptime            string         `json:"uptime"`
	ActiveChats       []int64        `json:"active_chats"`
	ChatHistoryCounts map[string]int `json:"chat_history_counts"`
	Watermark         int64          `json:"watermark"`
	UpdatesProcessed  int64          `json:"updates_processed"`
	Archive           *archive.Stats `json:"archive,omitempty"`
}

func (b *Bot) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	resp := statusResponse{
		Name:              b.config.Name,
		Uptime:            time.Since(b.startedAt).Round(time.Second).String(),
		ActiveChats:       b.chatIDs(),
		ChatHistoryCounts: b.history.Counts(),
		Watermark:         b.watermark.Load(),
		UpdatesProcessed:  b.processed.Load(),
	}

	if b.archive != nil {
		if stats, err := b.archive.Stats(r.Context()); err == nil {
			resp.Archive = &stats
		} else {
			slog.Warn("archive stats failed", "error", err)
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		slog.Warn("failed to encode status response", "error", err)
	}
}
