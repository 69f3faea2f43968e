package server

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/ASHISH26940/pipekv/internal/metrics"
	"github.com/ASHISH26940/pipekv/internal/persistence"
	"github.com/ASHISH26940/pipekv/internal/protocol"
	"github.com/ASHISH26940/pipekv/internal/store"
	"github.com/ASHISH26940/pipekv/internal/strategy"
)

// EngineOptions configures an Engine.
type EngineOptions struct {
	Strategies  strategy.Options
	MaxRecords  int    // 0 disables capacity enforcement
	SnapshotDir string // empty means client file names are used verbatim
	Logger      hclog.Logger
	Metrics     *metrics.Recorder
}

// Engine owns the record store and the strategy set for the lifetime of a
// server. Every request is applied under one lock, store effect and
// strategy effect together, so requests from all connections serialize.
type Engine struct {
	mu          sync.Mutex
	store       *store.Store
	strategies  *strategy.Set
	maxRecords  int
	snapshotDir string
	logger      hclog.Logger
	metrics     *metrics.Recorder
}

// NewEngine creates an Engine with an empty store.
func NewEngine(opts EngineOptions) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Engine{
		store:       store.NewStore(),
		strategies:  strategy.NewSet(opts.Strategies),
		maxRecords:  opts.MaxRecords,
		snapshotDir: opts.SnapshotDir,
		logger:      logger,
		metrics:     opts.Metrics,
	}
}

// Handle applies one request and builds its response. It never panics:
// a failure inside a request is reported as StatusError.
func (e *Engine) Handle(req *protocol.Request) (resp *protocol.Response) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("request panicked", "cmd", req.Command, "panic", r)
			resp = errorResponse(fmt.Errorf("internal error: %v", r))
		}
		e.logger.Trace("handled request", "cmd", req.Command, "status", resp.Status, "reason", resp.Reason)
		if e.metrics != nil {
			e.metrics.Request(string(req.Command), string(resp.Status), start)
		}
	}()

	switch req.Command {
	case protocol.CmdSaveToFile, protocol.CmdLoadFromFile:
		return e.handleSnapshot(req)
	default:
		return e.handleRecord(req)
	}
}

// View runs fn with the store under the request lock. fn must not retain st.
func (e *Engine) View(fn func(st *store.Store, set *strategy.Set)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.store, e.strategies)
}

func (e *Engine) handleRecord(req *protocol.Request) *protocol.Response {
	strat, err := e.strategies.Lookup(req.Strategy)
	if err != nil {
		return invalid(protocol.ReasonUnknownStrategy, err)
	}

	var resp *protocol.Response
	ev := strategy.Event{Op: opFor(req.Command)}
	fieldErr := req.CheckFields()
	if req.Tag != nil {
		ev.Tag = *req.Tag
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case !req.Command.Known():
		resp = invalid(protocol.ReasonUnknownCommand, fmt.Errorf("unknown command %q", req.Command))
	case fieldErr != nil:
		ev.Op = strategy.OpOther
		resp = invalid(protocol.ReasonMissingField, fieldErr)
	default:
		resp = e.apply(req)
		ev.Applied = resp.Status == protocol.StatusOK
	}

	// Unknown and incomplete commands still reach the named strategy.
	strat.Process(ev, e.store)

	if ev.Op == strategy.OpInsert && ev.Applied {
		e.enforceLimit(strat)
	}
	return resp
}

func (e *Engine) apply(req *protocol.Request) *protocol.Response {
	tag := *req.Tag
	switch req.Command {
	case protocol.CmdInsert:
		if err := e.store.Insert(tag, *req.Value); err != nil {
			return storeError(err)
		}
		return &protocol.Response{Status: protocol.StatusOK}
	case protocol.CmdRemove:
		v, err := e.store.Remove(tag)
		if err != nil {
			return storeError(err)
		}
		return &protocol.Response{Status: protocol.StatusOK, Payload: v}
	case protocol.CmdUpdate:
		v, err := e.store.Update(tag, *req.Value)
		if err != nil {
			return storeError(err)
		}
		return &protocol.Response{Status: protocol.StatusOK, Payload: v}
	case protocol.CmdSearch:
		v, err := e.store.Search(tag)
		if err != nil {
			return storeError(err)
		}
		return &protocol.Response{Status: protocol.StatusOK, Payload: v}
	}
	return invalid(protocol.ReasonUnknownCommand, fmt.Errorf("unknown command %q", req.Command))
}

// enforceLimit evicts the strategy's victims until the store fits maxRecords.
func (e *Engine) enforceLimit(strat strategy.Strategy) {
	if e.maxRecords <= 0 {
		return
	}
	for e.store.Len() > e.maxRecords {
		tag, ok := strat.Victim(e.store)
		if !ok {
			return
		}
		if _, err := e.store.Remove(tag); err != nil {
			e.logger.Error("eviction failed", "tag", tag, "error", err)
			return
		}
		e.logger.Debug("evicted record", "tag", tag, "strategy", strat.Name())
		if e.metrics != nil {
			e.metrics.Evicted(string(strat.Name()))
		}
	}
}

// handleSnapshot serves Save and Load. Strategies never see these requests.
func (e *Engine) handleSnapshot(req *protocol.Request) *protocol.Response {
	if err := req.CheckFields(); err != nil {
		return invalid(protocol.ReasonMissingField, err)
	}
	path, err := persistence.Resolve(e.snapshotDir, req.FileName)
	if err != nil {
		return invalid(protocol.ReasonBadFileName, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if req.Command == protocol.CmdSaveToFile {
		records := e.store.Snapshot()
		if err := persistence.Save(path, records); err != nil {
			e.logger.Error("save failed", "path", path, "error", err)
			return errorResponse(err)
		}
		e.logger.Info("saved snapshot", "path", path, "records", len(records))
		return &protocol.Response{Status: protocol.StatusOK, Payload: fmt.Sprintf("%d records", len(records))}
	}

	records, err := persistence.Load(path)
	if err != nil {
		e.logger.Error("load failed", "path", path, "error", err)
		return errorResponse(err)
	}
	if err := e.store.Restore(records); err != nil {
		e.logger.Error("load rejected", "path", path, "error", err)
		return errorResponse(err)
	}
	e.logger.Info("loaded snapshot", "path", path, "records", len(records))
	return &protocol.Response{Status: protocol.StatusOK, Payload: fmt.Sprintf("%d records", len(records))}
}

func opFor(cmd protocol.Command) strategy.Op {
	switch cmd {
	case protocol.CmdInsert:
		return strategy.OpInsert
	case protocol.CmdRemove:
		return strategy.OpRemove
	case protocol.CmdUpdate:
		return strategy.OpUpdate
	case protocol.CmdSearch:
		return strategy.OpSearch
	default:
		return strategy.OpOther
	}
}

func storeError(err error) *protocol.Response {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &protocol.Response{Status: protocol.StatusNotFound, Payload: err.Error()}
	case errors.Is(err, store.ErrDuplicateTag):
		return invalid(protocol.ReasonDuplicateTag, err)
	default:
		return errorResponse(err)
	}
}

func invalid(reason protocol.Reason, err error) *protocol.Response {
	return &protocol.Response{Status: protocol.StatusInvalid, Reason: reason, Payload: err.Error()}
}

func errorResponse(err error) *protocol.Response {
	return &protocol.Response{Status: protocol.StatusError, Payload: err.Error()}
}
