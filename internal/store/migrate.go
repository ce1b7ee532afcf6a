package store

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/HendryAvila/foreman/internal/plan"
)

// Project document migrations. Each migration transforms the raw document
// from version N to N+1; the chain runs once per load. A migration that
// fails leaves the original document untouched on disk and the load fails
// with the migration error; data is never half-migrated or dropped.

type migration struct {
	from  int
	apply func(doc map[string]any) error
}

var projectMigrations = []migration{
	// v0 → v1: earliest roots stored rails as a flat "forbiddenPhrases" /
	// "requiredPhrases" pair at the top level.
	{from: 0, apply: func(doc map[string]any) error {
		railsDoc := map[string]any{}
		if v, ok := doc["forbiddenPhrases"]; ok {
			railsDoc["forbidden"] = v
			delete(doc, "forbiddenPhrases")
		}
		if v, ok := doc["requiredPhrases"]; ok {
			railsDoc["required"] = v
			delete(doc, "requiredPhrases")
		}
		if _, ok := doc["rails"]; !ok {
			doc["rails"] = railsDoc
		}
		return nil
	}},
	// v1 → v2: workflow settings moved under a single "workflow" object and
	// approval mode names gained the manual/delayed_auto/instant_auto form.
	{from: 1, apply: func(doc map[string]any) error {
		if _, ok := doc["workflow"]; ok {
			return nil
		}
		workflow := map[string]any{"approvalMode": string(plan.ApprovalManual)}
		if v, ok := doc["approvalMode"]; ok {
			mode, _ := v.(string)
			switch mode {
			case "auto":
				workflow["approvalMode"] = string(plan.ApprovalInstantAuto)
			case "delayed":
				workflow["approvalMode"] = string(plan.ApprovalDelayedAuto)
			case "":
			default:
				workflow["approvalMode"] = mode
			}
			delete(doc, "approvalMode")
		}
		if v, ok := doc["branchPattern"]; ok {
			workflow["branchPattern"] = v
			delete(doc, "branchPattern")
		}
		doc["workflow"] = workflow
		return nil
	}},
}

// migrateProject parses the raw project document, walks it forward through
// the migration chain, and decodes the result. The caller persists the
// migrated form on the next settings write; the original bytes on disk stay
// intact until then.
func migrateProject(raw []byte, logger *slog.Logger) (*plan.Project, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing project document: %w", err)
	}

	version := 0
	if v, ok := doc["schemaVersion"].(float64); ok {
		version = int(v)
	}
	if version > plan.SchemaVersion {
		return nil, fmt.Errorf("project schema version %d is newer than this daemon supports (%d)",
			version, plan.SchemaVersion)
	}

	for _, m := range projectMigrations {
		if version != m.from {
			continue
		}
		if err := m.apply(doc); err != nil {
			logger.Warn("project migration failed; document left unmigrated",
				"from", m.from, "error", err)
			return nil, fmt.Errorf("migrating project document from v%d: %w", m.from, err)
		}
		version = m.from + 1
		doc["schemaVersion"] = version
		logger.Info("migrated project document", "to", version)
	}

	migrated, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("re-encoding migrated project document: %w", err)
	}
	var project plan.Project
	if err := json.Unmarshal(migrated, &project); err != nil {
		return nil, fmt.Errorf("decoding project document: %w", err)
	}
	project.SchemaVersion = version
	return &project, nil
}
