package domain

import (
	"strings"
	"time"
)

type ReportKind string

const (
	ReportKindSystem  ReportKind = "system"
	ReportKindUpdates ReportKind = "updates"
)

func ParseReportKind(raw string) (ReportKind, bool) {
	switch kind := ReportKind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case ReportKindSystem, ReportKindUpdates:
		return kind, true
	default:
		return "", false
	}
}

// Field is a single named value of a telemetry snapshot.
type Field struct {
	Name  string
	Value string
}

// Snapshot keeps fields in insertion order.
type Snapshot struct {
	Fields []Field
}

func (s *Snapshot) Add(name, value string) {
	s.Fields = append(s.Fields, Field{Name: name, Value: value})
}

func (s Snapshot) Len() int {
	return len(s.Fields)
}

type Run struct {
	ID              int64
	Kind            ReportKind
	Provider        string
	Model           string
	StartedAt       time.Time
	FinishedAt      time.Time
	GenerationError string
	ReportLength    int
	ChunkCount      int
	Status          string
	Deliveries      []Delivery
}

type Delivery struct {
	ChunkIndex  int
	Status      string
	HTTPStatus  int
	ErrorKind   string
	ErrorDetail string
}
