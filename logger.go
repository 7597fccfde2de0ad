package acmeclient

import "github.com/hlandau/xlog"

// newLogSite creates a quiet (no-op until a sink is attached) xlog site, the
// convention used throughout the teacher lineage (e.g. "var log, Log =
// xlog.NewQuiet(...)" in api.go, acmeendpoints/url.go, acmeutils). The four
// levels named in spec.md §4.7 — debug, info, notice, critical — map
// directly onto this logger's Debugf/Infof/Noticef/Critf methods; no
// separate Logger Sink type is needed on top of xlog.
func newLogSite(name string) (xlog.Logger, *xlog.Site) {
	return xlog.NewQuiet(name)
}
