package services

import (
	"encoding/json"
	"log"
	"strings"

	"github.com/gatewatch/backend/models"
	"github.com/nats-io/nats.go"
)

// SubjectDetections is the wildcard sensors publish detections on; the
// last token is the detection kind, e.g. detections.plate.
const SubjectDetections = "detections.>"

// StartDetectionConsumer queue-subscribes the intake to sensor detection
// subjects so detections can arrive over the bus as well as over HTTP.
// The queue group ensures each detection is processed once even with
// multiple engine instances on one bus.
func StartDetectionConsumer(conn *nats.Conn, intake *Intake) (*nats.Subscription, error) {
	return conn.QueueSubscribe(SubjectDetections, "intake-workers", func(msg *nats.Msg) {
		var det Detection
		if err := json.Unmarshal(msg.Data, &det); err != nil {
			log.Printf("⚠️ [INTAKE] Invalid detection on %s: %v", msg.Subject, err)
			return
		}
		if det.Kind == "" {
			// The subject token may carry the kind
			if i := strings.LastIndex(msg.Subject, "."); i >= 0 {
				det.Kind = models.DetectionKind(msg.Subject[i+1:])
			}
		}
		if _, err := intake.Ingest(det); err != nil {
			log.Printf("⚠️ [INTAKE] Failed to ingest detection from %s: %v", msg.Subject, err)
		}
	})
}
