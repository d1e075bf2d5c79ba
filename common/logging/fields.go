package logging

import (
	"log/slog"
	"time"
)

// Field names shared by every component so log queries stay stable.
const (
	FieldService   = "service"
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
	FieldOrigin    = "origin"
	FieldEventType = "event_type"
	FieldThreatID  = "threat_id"
	FieldAttackID  = "attack_id"
	FieldPattern   = "pattern"
	FieldScore     = "score"
	FieldSubject   = "subject"
	FieldCount     = "count"
)

func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration reports d in whole milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns an error attribute. A nil error yields an empty string value.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

// Origin is the source identifier a threat was grouped on.
func Origin(origin string) slog.Attr {
	return slog.String(FieldOrigin, origin)
}

func EventType(t string) slog.Attr {
	return slog.String(FieldEventType, t)
}

func ThreatID(id string) slog.Attr {
	return slog.String(FieldThreatID, id)
}

func AttackID(id string) slog.Attr {
	return slog.String(FieldAttackID, id)
}

func Pattern(name string) slog.Attr {
	return slog.String(FieldPattern, name)
}

func Score(score int) slog.Attr {
	return slog.Int(FieldScore, score)
}

func Subject(subject string) slog.Attr {
	return slog.String(FieldSubject, subject)
}

func Count(n int) slog.Attr {
	return slog.Int(FieldCount, n)
}
