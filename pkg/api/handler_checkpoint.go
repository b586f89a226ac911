package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/opus-nx/swarm/pkg/events"
	"github.com/opus-nx/swarm/pkg/models"
	"github.com/opus-nx/swarm/pkg/notify"
)

// CheckpointRequest is the body of POST /api/swarm/:session_id/checkpoint.
type CheckpointRequest struct {
	NodeID             string `json:"node_id"`
	Verdict            string `json:"verdict"`
	Correction         string `json:"correction,omitempty"`
	ExperimentID       string `json:"experiment_id,omitempty"`
	AlternativeSummary string `json:"alternative_summary,omitempty"`
	PromotedBy         string `json:"promoted_by,omitempty"`
}

// CheckpointResponse acknowledges a recorded human checkpoint.
type CheckpointResponse struct {
	Status           string `json:"status"`
	AnnotationNodeID string `json:"annotation_node_id"`
	ExperimentID     string `json:"experiment_id,omitempty"`
}

// checkpointHandler handles POST /api/swarm/:session_id/checkpoint. It writes
// a human annotation into the reasoning graph, records the verdict against an
// experiment when one is involved, and fires a corrective rerun on disagree.
func (s *Server) checkpointHandler(c *echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	var req CheckpointRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.NodeID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "node_id is required")
	}
	verdict := models.CheckpointVerdict(req.Verdict)
	if !verdict.IsValid() {
		return echo.NewHTTPError(http.StatusBadRequest,
			"verdict must be one of: verified, questionable, disagree, agree, explore, note")
	}

	annotationID := s.annotate(sessionID, req.NodeID, verdict)

	var correction *string
	if req.Correction != "" {
		correction = &req.Correction
	}
	s.bus.Publish(sessionID, events.NewHumanCheckpoint(sessionID, req.NodeID, verdict, correction))

	bgCtx := context.WithoutCancel(c.Request().Context())
	go s.notifier.NotifyCheckpoint(bgCtx, notify.CheckpointInput{
		SessionID:  sessionID,
		NodeID:     req.NodeID,
		Verdict:    verdict,
		Correction: req.Correction,
	})

	experimentID := req.ExperimentID

	// Disagree or explore with an alternative promotes a new experiment.
	if experimentID == "" && req.AlternativeSummary != "" &&
		(verdict == models.VerdictDisagree || verdict == models.VerdictExplore) {
		exp, err := s.lifecycle.CreateExperiment(c.Request().Context(),
			sessionID, req.NodeID, req.AlternativeSummary, req.PromotedBy)
		if err != nil {
			return mapServiceError(err)
		}
		experimentID = exp.ID
	}

	if experimentID != "" {
		err := s.lifecycle.RecordCheckpointAction(c.Request().Context(),
			experimentID, req.NodeID, verdict, req.Correction, req.PromotedBy)
		if err != nil {
			return mapServiceError(err)
		}
	}

	// A disagreement with a correction triggers a corrective rerun. With an
	// experiment in play the lifecycle service owns the rerun; otherwise the
	// coordinator reruns directly.
	if verdict == models.VerdictDisagree && req.Correction != "" {
		if experimentID != "" {
			if err := s.lifecycle.TriggerRerun(bgCtx, experimentID, req.Correction); err != nil {
				return mapServiceError(err)
			}
		} else {
			go func() {
				_, err := s.runner.RerunWithCorrection(bgCtx, sessionID, req.NodeID, req.Correction, "")
				if err != nil {
					s.logger.Error("correction rerun failed",
						"session_id", sessionID, "node_id", req.NodeID, "error", err)
					s.bus.Publish(sessionID, events.NewSwarmError(sessionID, err.Error()))
				}
			}()
		}
	}

	return c.JSON(http.StatusOK, &CheckpointResponse{
		Status:           "checkpoint_recorded",
		AnnotationNodeID: annotationID,
		ExperimentID:     experimentID,
	})
}

// annotate writes the human annotation node and its OBSERVES edge to the
// target. A cycle on the edge is logged and skipped; the annotation stands.
func (s *Server) annotate(sessionID, nodeID string, verdict models.CheckpointVerdict) string {
	annotation := models.NewReasoningNode(models.AgentMaestro, sessionID,
		"Human checkpoint: "+string(verdict), "human_annotation")
	annotation.Confidence = 1.0
	annotationID := s.graph.AddNode(annotation)

	if _, ok := s.graph.GetNode(nodeID); ok {
		edge := &models.ReasoningEdge{
			SourceID: annotationID,
			TargetID: nodeID,
			Relation: models.RelationObserves,
			Weight:   1.0,
			Metadata: map[string]any{"verdict": string(verdict)},
		}
		if err := s.graph.AddEdge(edge); err != nil {
			s.logger.Warn("checkpoint edge skipped",
				"session_id", sessionID, "node_id", nodeID, "error", err)
		}
	}
	return annotationID
}
