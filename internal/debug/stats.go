package debug

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
)

// Stats serves live runtime charts (goroutines, heap, GC pauses) while the
// server steps characters.
type Stats struct {
	addr string
	mgr  *statsview.ViewManager
	done chan struct{}
}

// StartStats serves the charts on addr. An empty addr returns nil, and a
// nil *Stats is safe to Stop.
func StartStats(addr string) *Stats {
	if addr == "" {
		return nil
	}
	// statsview reads its configuration once, in New.
	viewer.SetConfiguration(viewer.WithTheme(viewer.ThemeWesteros), viewer.WithAddr(addr))
	s := &Stats{addr: addr, mgr: statsview.New(), done: make(chan struct{})}
	go func() {
		defer close(s.done)
		if err := s.mgr.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("Stats server stopped", "addr", addr, "error", err)
		}
	}()
	slog.Info("Serving runtime stats", "url", "http://"+addr+"/debug/statsview")
	return s
}

func (s *Stats) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

func (s *Stats) Stop() {
	if s == nil {
		return
	}
	s.mgr.Stop()
	<-s.done
}
