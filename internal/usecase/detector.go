package usecase

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"custodia/internal/domain"
)

// Detector weights. Scores accumulate per signal and cap at 1.0; at or
// above ScoreAlertThreshold the ledger derives a suspicious_activity
// event.
const (
	scoreRapidActivity = 0.3
	scoreOffHours      = 0.2
	scoreMultiUserIP   = 0.4
	scoreHighPrivilege = 0.2
	scoreBulkOperation = 0.3

	ScoreAlertThreshold = 0.7

	rapidActivityWindow = 5 * time.Minute
	rapidActivityLimit  = 20
	multiUserIPWindow   = time.Hour
	multiUserIPLimit    = 3
	bulkFileLimit       = 10

	businessHoursStart = 6
	businessHoursEnd   = 22
)

var highPrivilegeEvents = map[domain.AuditEventType]struct{}{
	domain.AuditEventCaseDeleted:      {},
	domain.AuditEventRoleChange:       {},
	domain.AuditEventPermissionChange: {},
	domain.AuditEventExportCreated:    {},
}

// SuspiciousActivityDetector scores each appended event against sliding
// per-user and per-IP windows. Window-store failures degrade to a weaker
// score, never to a logging failure.
type SuspiciousActivityDetector struct {
	windows WindowStore
	log     *logrus.Logger
}

func NewSuspiciousActivityDetector(windows WindowStore, log *logrus.Logger) *SuspiciousActivityDetector {
	if log == nil {
		log = logrus.New()
	}
	return &SuspiciousActivityDetector{windows: windows, log: log}
}

// Score records the event in its windows and returns the composite
// anomaly score with the list of signals that fired.
func (d *SuspiciousActivityDetector) Score(ctx context.Context, event domain.AuditEvent) (float64, []string) {
	score := 0.0
	var signals []string

	if event.UserID != "" {
		count, err := d.windows.CountEvents(ctx, "user:"+event.UserID, event.Timestamp, rapidActivityWindow)
		if err != nil {
			d.log.WithError(err).Warn("detector user window unavailable")
		} else if count > rapidActivityLimit {
			score += scoreRapidActivity
			signals = append(signals, "rapid_activity")
		}
	}

	hour := event.Timestamp.Hour()
	if hour < businessHoursStart || hour >= businessHoursEnd {
		score += scoreOffHours
		signals = append(signals, "off_hours")
	}

	if event.IPAddress != "" && event.UserID != "" {
		distinct, err := d.windows.CountDistinct(ctx, "ip:"+event.IPAddress, event.UserID, event.Timestamp, multiUserIPWindow)
		if err != nil {
			d.log.WithError(err).Warn("detector ip window unavailable")
		} else if distinct > multiUserIPLimit {
			score += scoreMultiUserIP
			signals = append(signals, "multi_user_ip")
		}
	}

	if _, ok := highPrivilegeEvents[event.EventType]; ok {
		score += scoreHighPrivilege
		signals = append(signals, "high_privilege")
	}

	if fileCount, ok := numericDetail(event.Details, "file_count"); ok && fileCount > bulkFileLimit {
		score += scoreBulkOperation
		signals = append(signals, "bulk_operation")
	}

	if score > 1.0 {
		score = 1.0
	}
	return score, signals
}

// numericDetail tolerates the int/float split that JSON round-trips
// introduce in Details values.
func numericDetail(details map[string]any, key string) (int, bool) {
	if details == nil {
		return 0, false
	}
	switch v := details[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
