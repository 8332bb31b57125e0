package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-rrd/internal/catalog"
	"github.com/nerrad567/gray-logic-rrd/internal/ingest"
	"github.com/nerrad567/gray-logic-rrd/internal/rrdtool"
)

// maxDefinitions caps the DS and RRA definitions accepted by POST /rrd.
const maxDefinitions = 256

// databaseSummary is one element of GET /rrd.
type databaseSummary struct {
	Name        string   `json:"name"`
	Step        int64    `json:"step,omitempty"`
	LastUpdate  int64    `json:"last_update,omitempty"`
	DataSources []string `json:"data_sources,omitempty"`
}

// createRequest is the request body for POST /rrd.
type createRequest struct {
	Name        string   `json:"name"`
	Definitions []string `json:"definitions"`
	Step        int64    `json:"step,omitempty"`
	Start       int64    `json:"start,omitempty"`
}

// fetchResponse is the response body for GET /rrd/{name}/fetch.
type fetchResponse struct {
	Name string              `json:"name"`
	CF   string              `json:"cf"`
	Rows []rrdtool.Datapoint `json:"rows"`
}

// handleListDatabases lists the files in the data directory, enriched with
// catalog metadata where the catalog knows the file.
func (s *Server) handleListDatabases(w http.ResponseWriter, r *http.Request) {
	names, err := s.databases.Names()
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	known := map[string]catalog.Entry{}
	if s.catalog != nil {
		entries, err := s.catalog.List(r.Context())
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		for _, e := range entries {
			known[e.Name] = e
		}
	}

	out := make([]databaseSummary, 0, len(names))
	for _, name := range names {
		summary := databaseSummary{Name: name}
		if e, ok := known[name]; ok {
			summary.Step = e.Step
			summary.LastUpdate = e.LastUpdate
			summary.DataSources = e.DataSourceNames()
		}
		out = append(out, summary)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"databases": out,
		"count":     len(out),
	})
}

// handleCreateDatabase creates a new database file and registers it.
func (s *Server) handleCreateDatabase(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Definitions) == 0 || len(req.Definitions) > maxDefinitions {
		writeBadRequest(w, fmt.Sprintf("between 1 and %d definitions are required", maxDefinitions))
		return
	}
	if req.Step < 0 || req.Start < 0 {
		writeBadRequest(w, "step and start must not be negative")
		return
	}

	path, err := s.databases.Path(req.Name)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	ctx := r.Context()
	db, err := s.databases.Create(ctx, req.Name, req.Definitions, rrdtool.CreateOptions{
		Step:  req.Step,
		Start: req.Start,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	info, err := db.Info(ctx)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	entry := catalog.EntryFromInfo(req.Name, path, info)
	if s.catalog != nil {
		registered, err := catalog.Register(ctx, s.catalog, s.databases, req.Name)
		if err != nil {
			s.logger.Warn("registering created database failed", "name", req.Name, "error", err)
		} else {
			entry = registered
		}
	}

	s.logger.Info("database created", "name", req.Name, "path", path, "user", requestUser(r))
	s.hub.Broadcast(ChannelCreated, entry)
	writeJSON(w, http.StatusCreated, entry)
}

// handleGetDatabase returns the catalog entry of a database, registering the
// file if the catalog has not seen it yet.
func (s *Server) handleGetDatabase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")

	if s.catalog == nil {
		path, err := s.databases.Path(name)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		info, err := s.databases.Info(ctx, name)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, catalog.EntryFromInfo(name, path, info))
		return
	}

	entry, err := s.catalog.GetByName(ctx, name)
	if errors.Is(err, catalog.ErrNotFound) {
		entry, err = catalog.Register(ctx, s.catalog, s.databases, name)
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleInfo returns `rrdtool info` for a database. With raw=true the
// generic tree is returned instead of the typed description.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	db, err := s.databases.Get(ctx, chi.URLParam(r, "name"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	raw, err := parseBoolParam(r.URL.Query().Get("raw"))
	if err != nil {
		writeBadRequest(w, "invalid raw parameter")
		return
	}
	if raw {
		tree, err := db.InfoTree(ctx)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tree)
		return
	}

	info, err := db.Info(ctx)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleFetch returns consolidated rows of one archive.
//
// Query parameters: cf (default AVERAGE), start, end, resolution (Unix
// seconds) and align_start.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	cf := rrdtool.Average
	if v := q.Get("cf"); v != "" {
		parsed, err := rrdtool.ParseConsolidationFunction(v)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		cf = parsed
	}

	var opts rrdtool.FetchOptions
	var err error
	if opts.Start, err = parseInt64Param(q.Get("start")); err != nil {
		writeBadRequest(w, "invalid start")
		return
	}
	if opts.End, err = parseInt64Param(q.Get("end")); err != nil {
		writeBadRequest(w, "invalid end")
		return
	}
	if opts.Resolution, err = parseInt64Param(q.Get("resolution")); err != nil {
		writeBadRequest(w, "invalid resolution")
		return
	}
	if opts.AlignStart, err = parseBoolParam(q.Get("align_start")); err != nil {
		writeBadRequest(w, "invalid align_start")
		return
	}
	if opts.End > 0 && opts.Start > opts.End {
		writeBadRequest(w, "start must not be after end")
		return
	}

	ctx := r.Context()
	db, err := s.databases.Get(ctx, chi.URLParam(r, "name"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	rows, err := db.Fetch(ctx, cf, opts)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, fetchResponse{
		Name: chi.URLParam(r, "name"),
		CF:   string(cf),
		Rows: rows,
	})
}

// handleLast returns the timestamp of the most recent update.
func (s *Server) handleLast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")
	db, err := s.databases.Get(ctx, name)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	ts, err := db.Last(ctx)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      name,
		"timestamp": ts,
	})
}

// handleLastUpdate returns the most recent value of every data source.
func (s *Server) handleLastUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	db, err := s.databases.Get(ctx, chi.URLParam(r, "name"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	lu, err := db.LastUpdate(ctx)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lu)
}

// handleUpdate applies one sample. The body has the shape of an MQTT update
// message.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "request body too large or unreadable")
		return
	}
	req, err := ingest.DecodeRequest(body)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	req.Name = chi.URLParam(r, "name")

	ev, err := s.updater.Apply(r.Context(), req, catalog.SourceAPI)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.logger.Debug("update applied via API", "name", req.Name, "user", requestUser(r))
	writeJSON(w, http.StatusOK, ev)
}

// handleDump streams the XML dump of a database.
func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	db, err := s.databases.Get(ctx, chi.URLParam(r, "name"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	xml, err := db.Dump(ctx)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	io.WriteString(w, xml)
}

// requestUser returns the authenticated username, or "" for public routes.
func requestUser(r *http.Request) string {
	if claims := claimsFromContext(r.Context()); claims != nil {
		return claims.Subject
	}
	return ""
}

// parseInt64Param parses an optional non-negative integer query parameter.
func parseInt64Param(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative value %d", v)
	}
	return v, nil
}

// parseBoolParam parses an optional boolean query parameter.
func parseBoolParam(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}
