package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Schema objects the store depends on, in probe order.
var (
	probeTables = []string{
		"thinking_nodes",
		"reasoning_edges",
		"reasoning_artifacts",
		"structured_reasoning_hypotheses",
		"hypothesis_experiments",
		"hypothesis_experiment_actions",
		"session_rehydration_runs",
	}
	probeFunctions = []string{
		"match_reasoning_artifacts",
		"match_structured_reasoning_hypotheses",
	}
)

// ProbeCapabilities checks which tables and functions exist and caches
// the result. Names resolve through the connection's search_path, the
// same way the queries that depend on them do.
func (s *Store) ProbeCapabilities(ctx context.Context) Capabilities {
	var clauses []string
	for _, table := range probeTables {
		clauses = append(clauses, fmt.Sprintf("to_regclass('%s') IS NOT NULL", table))
	}
	for _, fn := range probeFunctions {
		clauses = append(clauses, fmt.Sprintf("to_regproc('%s') IS NOT NULL", fn))
	}
	query := "SELECT " + strings.Join(clauses, ", ")

	flags := make([]bool, len(probeTables)+len(probeFunctions))
	dest := make([]any, len(flags))
	for i := range flags {
		dest[i] = &flags[i]
	}

	caps := Capabilities{
		Configured: true,
		Tables:     make(map[string]bool, len(probeTables)),
		RPC:        make(map[string]bool, len(probeFunctions)),
	}
	if err := s.db.QueryRowContext(ctx, query).Scan(dest...); err != nil {
		slog.Warn("capability_probe_failed", "error", err)
		for _, table := range probeTables {
			caps.Tables[table] = false
		}
		for _, fn := range probeFunctions {
			caps.RPC[fn] = false
		}
		caps.DegradedMode = true
		caps.DegradedReason = fmt.Sprintf("capability probe failed: %v", err)
		s.storeCapabilities(caps)
		return caps
	}

	for i, table := range probeTables {
		caps.Tables[table] = flags[i]
	}
	for i, fn := range probeFunctions {
		caps.RPC[fn] = flags[len(probeTables)+i]
	}
	finalizeCapabilities(&caps, s.embedder != nil)
	s.storeCapabilities(caps)

	slog.Info("capabilities_probed",
		"lifecycle_ready", caps.LifecycleReady,
		"rehydration_ready", caps.RehydrationReady,
		"degraded_mode", caps.DegradedMode,
	)
	return caps
}

// Capabilities returns a copy of the last probe result, adjusted for
// any objects found missing since.
func (s *Store) Capabilities() Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCapabilities(s.caps)
}

func (s *Store) storeCapabilities(caps Capabilities) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caps = caps
}

// mapError converts missing-object database errors into
// CapabilityError and downgrades the cached capability flags so the
// rest of the process stops calling into the missing object.
func (s *Store) mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "42P01": // undefined_table
		name := missingObject(pgErr.Message)
		s.markMissing("table", name)
		return NewCapabilityError("table", name, err)
	case "42883": // undefined_function
		name := missingObject(pgErr.Message)
		s.markMissing("function", name)
		return NewCapabilityError("function", name, err)
	}
	return err
}

func (s *Store) markMissing(kind, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case "table":
		if _, ok := s.caps.Tables[name]; ok {
			s.caps.Tables[name] = false
		}
	case "function":
		if _, ok := s.caps.RPC[name]; ok {
			s.caps.RPC[name] = false
		}
	}
	finalizeCapabilities(&s.caps, s.embedder != nil)
	slog.Warn("capability_marked_unavailable", "kind", kind, "object", name)
}

// finalizeCapabilities recomputes the derived readiness flags from the
// raw table and function flags.
func finalizeCapabilities(caps *Capabilities, embedderConfigured bool) {
	caps.LifecycleReady = caps.Tables["hypothesis_experiments"] &&
		caps.Tables["hypothesis_experiment_actions"]
	caps.RehydrationReady = embedderConfigured &&
		caps.Tables["reasoning_artifacts"] &&
		caps.Tables["session_rehydration_runs"] &&
		caps.RPC["match_reasoning_artifacts"] &&
		caps.RPC["match_structured_reasoning_hypotheses"]

	var missing []string
	for _, table := range probeTables {
		if !caps.Tables[table] {
			missing = append(missing, "table "+table)
		}
	}
	for _, fn := range probeFunctions {
		if !caps.RPC[fn] {
			missing = append(missing, "function "+fn)
		}
	}
	if !embedderConfigured {
		missing = append(missing, "embedding provider")
	}
	caps.DegradedMode = len(missing) > 0
	if caps.DegradedMode {
		caps.DegradedReason = "missing: " + strings.Join(missing, ", ")
	} else {
		caps.DegradedReason = ""
	}
}

func copyCapabilities(caps Capabilities) Capabilities {
	out := caps
	out.Tables = make(map[string]bool, len(caps.Tables))
	for k, v := range caps.Tables {
		out.Tables[k] = v
	}
	out.RPC = make(map[string]bool, len(caps.RPC))
	for k, v := range caps.RPC {
		out.RPC[k] = v
	}
	return out
}

// missingObject pulls the object name out of a missing-object error
// message. Relations come quoted (`relation "foo" does not exist`),
// functions come with an argument list (`function foo(uuid) does not
// exist`).
func missingObject(message string) string {
	if start := strings.IndexByte(message, '"'); start >= 0 {
		rest := message[start+1:]
		if end := strings.IndexByte(rest, '"'); end >= 0 {
			return rest[:end]
		}
	}
	if rest, ok := strings.CutPrefix(message, "function "); ok {
		if paren := strings.IndexByte(rest, '('); paren > 0 {
			return rest[:paren]
		}
	}
	return "unknown"
}
